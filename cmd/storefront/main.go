package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/storefront-client/internal/api"
	"github.com/example/storefront-client/internal/auth"
	"github.com/example/storefront-client/internal/domain/cart"
	"github.com/example/storefront-client/internal/domain/checkout"
	"github.com/example/storefront-client/internal/infrastructure/storage"
	"github.com/example/storefront-client/internal/prefs"
	"github.com/example/storefront-client/internal/transport"
)

const defaultPageSize = 20

// app bundles the wired components a command handler needs.
type app struct {
	client  *api.Client
	session *auth.Session
	cart    *cart.Store
	stepper *checkout.Stepper
	flow    *checkout.Flow
	prefs   *prefs.Prefs
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Configuration from environment variables
	apiURL := strings.TrimRight(getEnv("STOREFRONT_API_URL", "http://localhost:8080/api"), "/")
	stateDir := getEnv("STOREFRONT_STATE_DIR", defaultStateDir())
	redisAddr := os.Getenv("STOREFRONT_REDIS_ADDR")

	var backing storage.Store
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		backing = storage.NewRedisStore(rdb, "cli")
		log.Printf("[Storefront] State in Redis at %s", redisAddr)
	} else {
		fs, err := storage.NewFileStore(stateDir)
		if err != nil {
			log.Fatalf("[Storefront] Failed to open state dir %s: %v", stateDir, err)
		}
		backing = fs
	}
	store := storage.NewNotifier(backing)

	session := auth.NewSession(ctx, store)
	refresher := auth.NewRefresher(session, apiURL+"/auth/refresh", &http.Client{Timeout: 10 * time.Second}, func() {
		log.Println("[Storefront] Session expired, please log in again")
	})

	httpClient := &http.Client{
		Transport: transport.New(transport.Config{Session: session, Refresher: refresher}),
		Timeout:   30 * time.Second,
	}
	client := api.NewClient(apiURL, httpClient)

	cartStore := cart.NewStore(ctx, store)
	stepper := checkout.NewStepper(store, cartStore)
	stepper.Load(ctx)

	a := &app{
		client:  client,
		session: session,
		cart:    cartStore,
		stepper: stepper,
		flow:    checkout.NewFlow(stepper, cartStore, client, client),
		prefs:   prefs.New(store),
	}

	if err := dispatch(ctx, a, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("[Storefront] %v", err)
	}
}

func dispatch(ctx context.Context, a *app, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "register":
		return a.register(ctx, args)
	case "me":
		return a.me(ctx)
	case "products":
		return a.products(ctx, args)
	case "product":
		return a.product(ctx, args)
	case "categories":
		return a.categories(ctx)
	case "addresses":
		return a.addresses(ctx, args)
	case "forgot-password":
		return a.forgotPassword(ctx, args)
	case "reset-password":
		return a.resetPassword(ctx, args)
	case "cart":
		return a.cartCmd(ctx, args)
	case "coupon":
		return a.couponCmd(ctx, args)
	case "checkout":
		return a.checkoutCmd(ctx, args)
	case "orders":
		return a.orders(ctx, args)
	case "order":
		return a.order(ctx, args)
	case "locale":
		return a.locale(ctx, args)
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// ============================================
// Auth Commands
// ============================================

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: storefront login <email> <password>")
	}

	grant, err := a.client.Login(ctx, api.Credentials{Email: args[0], Password: args[1]})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := a.storeGrant(ctx, grant); err != nil {
		return err
	}

	user, _ := a.session.User()
	fmt.Printf("Logged in as %s\n", user.Email)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: storefront register <name> <email> <password>")
	}

	grant, err := a.client.Register(ctx, api.Registration{Name: args[0], Email: args[1], Password: args[2]})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	if err := a.storeGrant(ctx, grant); err != nil {
		return err
	}

	fmt.Printf("Registered %s\n", args[1])
	return nil
}

func (a *app) storeGrant(ctx context.Context, grant *api.TokenGrant) error {
	if err := a.session.SetTokens(ctx, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	if grant.User != nil {
		if err := a.session.SetUser(ctx, *grant.User); err != nil {
			return fmt.Errorf("store user: %w", err)
		}
	}
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if a.session.Authenticated() {
		if err := a.client.Logout(ctx); err != nil {
			log.Printf("[Storefront] Server logout failed, clearing local session anyway: %v", err)
		}
	}
	if err := a.session.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func (a *app) forgotPassword(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: storefront forgot-password <email>")
	}
	if err := a.client.ForgotPassword(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Reset instructions sent to %s\n", args[0])
	return nil
}

func (a *app) resetPassword(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: storefront reset-password <token> <new-password>")
	}
	if err := a.client.ResetPassword(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("Password reset, please log in")
	return nil
}

func (a *app) me(ctx context.Context) error {
	user, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> (%s)\n", user.Name, user.Email, user.Role)
	return nil
}

// ============================================
// Catalog Commands
// ============================================

func (a *app) products(ctx context.Context, args []string) error {
	page := 1
	var categoryID int64
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("page must be a number: %q", args[0])
		}
		page = n
	}
	if len(args) > 1 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("category id must be a number: %q", args[1])
		}
		categoryID = n
	}

	result, err := a.client.ListProducts(ctx, page, defaultPageSize, categoryID)
	if err != nil {
		return err
	}
	for _, p := range result.Items {
		fmt.Printf("%6d  %-40s %10s  stock %d\n", p.ID, p.Name, formatPrice(p.Price), p.Stock)
	}
	fmt.Printf("page %d/%d (%d products)\n", result.Page, result.TotalPages, result.TotalCount)
	return nil
}

func (a *app) product(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: storefront product <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("product id must be a number: %q", args[0])
	}

	p, err := a.client.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\nPrice: %s  Stock: %d\n", p.Name, p.Description, formatPrice(p.Price), p.Stock)
	for name, values := range p.Variants {
		fmt.Printf("  %s: %s\n", name, strings.Join(values, ", "))
	}
	return nil
}

func (a *app) categories(ctx context.Context) error {
	cats, err := a.client.ListCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range cats {
		fmt.Printf("%6d  %s\n", c.ID, c.Name)
	}
	return nil
}

// ============================================
// Address Book Commands
// ============================================

func (a *app) addresses(ctx context.Context, args []string) error {
	if len(args) == 0 {
		addrs, err := a.client.ListAddresses(ctx)
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			def := ""
			if addr.IsDefault {
				def = " (default)"
			}
			fmt.Printf("%6d  %s, %s, %s %s%s\n", addr.ID, addr.FullName, addr.Street(), addr.City, addr.PostalCode, def)
		}
		return nil
	}

	if args[0] != "add" || len(args) < 6 {
		return fmt.Errorf("usage: storefront addresses [add <full-name> <street> <city> <postal-code> <country>]")
	}
	addr, err := a.client.CreateAddress(ctx, api.Address{
		FullName:     args[1],
		AddressLine1: args[2],
		City:         args[3],
		PostalCode:   args[4],
		Country:      args[5],
	})
	if err != nil {
		return err
	}
	fmt.Printf("Saved address %d\n", addr.ID)
	return nil
}

// ============================================
// Cart Commands
// ============================================

func (a *app) cartCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.printCart()
	}

	switch args[0] {
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: storefront cart add <product-id> [quantity]")
		}
		productID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("product id must be a number: %q", args[1])
		}
		quantity := 1
		if len(args) > 2 {
			quantity, err = strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %q", args[2])
			}
		}

		product, err := a.client.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("fetch product %d: %w", productID, err)
		}
		line := a.cart.AddItem(ctx, cart.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  quantity,
		})
		fmt.Printf("Added %dx %s (line %s)\n", line.Quantity, line.Name, line.ID)
		return nil

	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: storefront cart remove <line-id>")
		}
		a.cart.RemoveItem(ctx, args[1])
		return a.printCart()

	case "qty":
		if len(args) != 3 {
			return fmt.Errorf("usage: storefront cart qty <line-id> <quantity>")
		}
		quantity, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity must be a number: %q", args[2])
		}
		a.cart.UpdateQuantity(ctx, args[1], quantity)
		return a.printCart()

	case "clear":
		a.cart.Clear(ctx)
		fmt.Println("Cart cleared")
		return nil

	default:
		return fmt.Errorf("unknown cart command %q", args[0])
	}
}

func (a *app) printCart() error {
	if a.cart.IsEmpty() {
		fmt.Println("Cart is empty")
		return nil
	}
	for _, item := range a.cart.Items() {
		fmt.Printf("%s  %dx %-40s %10s\n", item.ID, item.Quantity, item.Name, formatPrice(item.UnitPrice*int64(item.Quantity)))
	}
	fmt.Printf("Subtotal: %s\n", formatPrice(a.cart.TotalPrice()))
	if applied, ok := a.cart.AppliedCoupon(); ok && applied.Validation.IsValid {
		fmt.Printf("Coupon %s: -%s\n", applied.Coupon.Code, formatPrice(a.cart.DiscountAmount()))
		fmt.Printf("Total:    %s\n", formatPrice(a.cart.TotalPriceWithDiscount()))
	}
	return nil
}

// ============================================
// Coupon Commands
// ============================================

func (a *app) couponCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: storefront coupon apply <code> | coupon remove")
	}

	switch args[0] {
	case "apply":
		if len(args) != 2 {
			return fmt.Errorf("usage: storefront coupon apply <code>")
		}
		userID := ""
		if user, ok := a.session.User(); ok {
			userID = user.ID
		}
		validation, err := a.client.ValidateCoupon(ctx, args[1], a.cart.TotalPrice(), userID)
		if err != nil {
			return fmt.Errorf("validate coupon: %w", err)
		}
		if !validation.IsValid || validation.Coupon == nil {
			fmt.Printf("Coupon rejected: %s\n", validation.Message)
			return nil
		}
		a.cart.ApplyCoupon(ctx, *validation.Coupon, *validation)
		fmt.Printf("Coupon %s applied, total %s\n", validation.Coupon.Code, formatPrice(a.cart.TotalPriceWithDiscount()))
		return nil

	case "remove":
		a.cart.RemoveCoupon(ctx)
		fmt.Println("Coupon removed")
		return nil

	default:
		return fmt.Errorf("unknown coupon command %q", args[0])
	}
}

// ============================================
// Checkout Commands
// ============================================

func (a *app) checkoutCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.printCheckout()
	}

	switch args[0] {
	case "start":
		a.stepper.Begin(ctx)
		return a.printCheckout()

	case "next":
		current := a.stepper.Current()
		if !a.stepper.IsStepComplete(current) {
			return fmt.Errorf("complete the %s step first", current)
		}
		a.stepper.Next(ctx)
		return a.printCheckout()

	case "back":
		a.stepper.Previous(ctx)
		return a.printCheckout()

	case "address":
		if len(args) < 6 {
			return fmt.Errorf("usage: storefront checkout address <full-name> <street> <city> <postal-code> <country>")
		}
		a.stepper.UpdateData(ctx, checkout.Data{Address: &api.Address{
			FullName:     args[1],
			AddressLine1: args[2],
			City:         args[3],
			PostalCode:   args[4],
			Country:      args[5],
		}})
		return a.printCheckout()

	case "use-address":
		if len(args) != 2 {
			return fmt.Errorf("usage: storefront checkout use-address <address-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("address id must be a number: %q", args[1])
		}
		addr, err := a.client.GetAddress(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch address %d: %w", id, err)
		}
		a.stepper.UpdateData(ctx, checkout.Data{Address: addr, SelectedAddressID: id})
		return a.printCheckout()

	case "timing":
		if len(args) != 2 {
			return fmt.Errorf("usage: storefront checkout timing now|on_delivery")
		}
		order, err := a.flow.SelectPaymentTiming(ctx, checkout.PaymentTiming(args[1]))
		if err != nil {
			return err
		}
		if order != nil {
			fmt.Printf("Order %s placed (pay on delivery), status %s\n", order.ID, order.Status)
			return nil
		}
		return a.printCheckout()

	case "pay":
		if len(args) != 6 {
			return fmt.Errorf("usage: storefront checkout pay <card-number> <holder-name> <month> <year> <cvv>")
		}
		if a.stepper.Data().PaymentTiming == "" {
			return fmt.Errorf("select a payment timing first (checkout timing now|on_delivery)")
		}
		order, err := a.flow.SubmitPayment(ctx, checkout.Card{
			Number:      args[1],
			HolderName:  args[2],
			ExpiryMonth: args[3],
			ExpiryYear:  args[4],
			CVV:         args[5],
		})
		if err != nil {
			return err
		}
		fmt.Printf("Order %s placed, status %s\n", order.ID, order.Status)
		return nil

	case "revalidate":
		userID := ""
		if user, ok := a.session.User(); ok {
			userID = user.ID
		}
		validation, err := a.flow.RevalidateCoupon(ctx, userID)
		if err != nil {
			return err
		}
		if validation == nil {
			fmt.Println("No coupon to re-validate")
		} else if validation.IsValid {
			fmt.Printf("Coupon still valid, total %s\n", formatPrice(a.cart.TotalPriceWithDiscount()))
		} else {
			fmt.Printf("Coupon dropped: %s\n", validation.Message)
		}
		return nil

	default:
		return fmt.Errorf("unknown checkout command %q", args[0])
	}
}

func (a *app) printCheckout() error {
	current := a.stepper.Current()
	fmt.Printf("Step: %s\n", current)

	data := a.stepper.Data()
	if data.Address != nil {
		fmt.Printf("Ship to: %s, %s, %s\n", data.Address.FullName, data.Address.Street(), data.Address.City)
	}
	if data.PaymentTiming != "" {
		fmt.Printf("Payment: %s\n", data.PaymentTiming)
	}
	for step := checkout.StepShipping; step <= checkout.StepPayment; step++ {
		mark := " "
		if a.stepper.IsStepComplete(step) {
			mark = "x"
		}
		fmt.Printf("  [%s] %s\n", mark, step)
	}
	return nil
}

// ============================================
// Order Commands
// ============================================

func (a *app) orders(ctx context.Context, args []string) error {
	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("page must be a number: %q", args[0])
		}
		page = n
	}

	result, err := a.client.ListOrders(ctx, page, defaultPageSize)
	if err != nil {
		return err
	}
	for _, o := range result.Items {
		fmt.Printf("%s  %-10s %10s  %s\n", o.ID, o.Status, formatPrice(o.Total), o.CreatedAt.Format("2006-01-02"))
	}
	fmt.Printf("page %d/%d (%d orders)\n", result.Page, result.TotalPages, result.TotalCount)
	return nil
}

func (a *app) order(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: storefront order <id>")
	}

	o, err := a.client.GetOrder(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Order %s: %s, placed %s\n", o.ID, o.Status, o.CreatedAt.Format(time.RFC3339))
	for _, item := range o.Items {
		fmt.Printf("  %dx %-40s %10s\n", item.Quantity, item.Name, formatPrice(item.Price*int64(item.Quantity)))
	}
	if o.Discount > 0 {
		fmt.Printf("Discount: -%s\n", formatPrice(o.Discount))
	}
	fmt.Printf("Total: %s\n", formatPrice(o.Total))
	return nil
}

// ============================================
// Preferences
// ============================================

func (a *app) locale(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println(a.prefs.Locale(ctx))
		return nil
	}

	updates, cancel := a.prefs.WatchLocale(ctx)
	defer cancel()

	if err := a.prefs.SetLocale(ctx, args[0]); err != nil {
		return err
	}
	select {
	case locale := <-updates:
		fmt.Printf("Locale set to %s\n", locale)
	case <-time.After(time.Second):
		fmt.Printf("Locale set to %s\n", args[0])
	}
	return nil
}

// ============================================
// Helpers
// ============================================

func formatPrice(minorUnits int64) string {
	sign := ""
	if minorUnits < 0 {
		sign = "-"
		minorUnits = -minorUnits
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minorUnits/100, minorUnits%100)
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront"
	}
	return filepath.Join(home, ".storefront")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func usage() {
	fmt.Fprint(os.Stderr, `storefront - command-line storefront client

Usage:
  storefront login <email> <password>
  storefront logout
  storefront register <name> <email> <password>
  storefront me
  storefront forgot-password <email>
  storefront reset-password <token> <new-password>
  storefront addresses [add <full-name> <street> <city> <postal-code> <country>]
  storefront products [page] [category-id]
  storefront product <id>
  storefront categories
  storefront cart [add <product-id> [qty] | remove <line-id> | qty <line-id> <n> | clear]
  storefront coupon apply <code> | coupon remove
  storefront checkout [start | next | back | address ... | use-address <id> | timing now|on_delivery | pay ... | revalidate]
  storefront orders [page]
  storefront order <id>
  storefront locale [tag]

Environment:
  STOREFRONT_API_URL     API base URL (default http://localhost:8080/api)
  STOREFRONT_STATE_DIR   local state directory (default ~/.storefront)
  STOREFRONT_REDIS_ADDR  keep state in Redis instead of files
`)
}
