package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/posclient"
	"github.com/google/uuid"
)

const help = `commands:
  login <email> <password>   sign in
  logout                     sign out and drop the cart
  list [page]                show a catalog page
  search [term]              filter the catalog (empty term clears)
  next | prev                page through results
  add <id>                   add one of a product
  qty <id> <n>               set a line's quantity
  rm <id>                    remove a line
  cart                       show the cart
  checkout <proof-file>      submit the cart with a payment proof
  orders                     list this account's orders
  quit`

type terminal struct {
	api     *posclient.Client
	catalog *catalog.Manager
	cart    *cart.Cart
	out     io.Writer

	// pendingKey is reused until a checkout attempt gets an answer.
	pendingKey string
}

func newTerminal(baseURL string, pageSize int, out io.Writer) *terminal {
	api := posclient.New(baseURL)
	return &terminal{
		api:     api,
		catalog: catalog.NewManager(api, pageSize),
		cart:    cart.New(),
		out:     out,
	}
}

func (t *terminal) run(ctx context.Context, in *bufio.Scanner) error {
	fmt.Fprintln(t.out, help)
	for {
		fmt.Fprint(t.out, "> ")
		if !in.Scan() {
			return in.Err()
		}
		args := strings.Fields(in.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}
		if err := t.exec(ctx, args[0], args[1:]); err != nil {
			fmt.Fprintln(t.out, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (t *terminal) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(t.out, help)
	case "login":
		if len(args) != 2 {
			return errors.New("usage: login <email> <password>")
		}
		id, err := t.api.SignIn(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(t.out, "signed in as %s (%s)\n", id.Email, id.Role)
	case "logout":
		t.cart.Clear()
		return t.api.SignOut(ctx)
	case "list":
		page := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad page %q", args[0])
			}
			page = n
		}
		return t.show(ctx, page, t.catalog.Snapshot().Term)
	case "search":
		return t.show(ctx, 1, strings.Join(args, " "))
	case "next":
		s := t.catalog.Snapshot()
		if s.Page >= t.catalog.TotalPages() {
			return errors.New("already on the last page")
		}
		return t.show(ctx, s.Page+1, s.Term)
	case "prev":
		s := t.catalog.Snapshot()
		if s.Page <= 1 {
			return errors.New("already on the first page")
		}
		return t.show(ctx, s.Page-1, s.Term)
	case "add":
		id, err := idArg(args, 0)
		if err != nil {
			return err
		}
		p, ok := t.catalog.Lookup(id)
		if !ok {
			if p, err = t.api.Product(ctx, id); err != nil {
				return err
			}
		}
		if !t.cart.Add(p) {
			return fmt.Errorf("%s is not available", p.Name)
		}
		t.printCart()
	case "qty":
		id, err := idArg(args, 0)
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("usage: qty <id> <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad quantity %q", args[1])
		}
		if !t.cart.SetQuantity(id, n) {
			return fmt.Errorf("product %d is not in the cart", id)
		}
		t.printCart()
	case "rm":
		id, err := idArg(args, 0)
		if err != nil {
			return err
		}
		t.cart.Remove(id)
		t.printCart()
	case "cart":
		t.printCart()
	case "checkout":
		if len(args) != 1 {
			return errors.New("usage: checkout <proof-file>")
		}
		return t.checkout(ctx, args[0])
	case "orders":
		list, err := t.api.Orders(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ORDER\tSTATUS\tTOTAL\tCREATED")
		for _, o := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Status, o.TotalAmount.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (t *terminal) show(ctx context.Context, page int, term string) error {
	pg, err := t.catalog.Fetch(ctx, page, term)
	if errors.Is(err, catalog.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\t")
	for _, p := range pg.Items {
		flag := ""
		if !p.Active {
			flag = "inactive"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock, flag)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(t.out, "page %d of %d (%d products)\n", pg.Page, t.catalog.TotalPages(), pg.TotalCount)
	return nil
}

func (t *terminal) printCart() {
	if t.cart.Empty() {
		fmt.Fprintln(t.out, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tSUBTOTAL")
	for _, l := range t.cart.Lines() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", l.Product.ID, l.Product.Name, l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t%d\t%s\n", t.cart.Count(), t.cart.Total().StringFixed(2))
	_ = tw.Flush()
}

// checkout pushes the local cart to the server and submits it. A failed
// attempt keeps its idempotency key so a retry cannot double-order.
func (t *terminal) checkout(ctx context.Context, path string) error {
	if t.cart.Empty() {
		return errors.New("cart is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := t.api.SyncCart(ctx, t.cart); err != nil {
		return fmt.Errorf("sync cart: %w", err)
	}
	if t.pendingKey == "" {
		t.pendingKey = uuid.NewString()
	}
	res, err := t.api.Checkout(ctx, t.pendingKey, filepath.Base(path), f)
	var apiErr *posclient.APIError
	if err != nil && (!errors.As(err, &apiErr) || apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusConflict) {
		return fmt.Errorf("checkout (retry keeps key %s): %w", t.pendingKey, err)
	}
	t.pendingKey = ""
	if err != nil {
		return err
	}
	t.cart.Clear()
	if res.Existed {
		fmt.Fprintf(t.out, "order %s was already placed\n", res.Order.ID)
		return nil
	}
	fmt.Fprintf(t.out, "order %s placed, total %s, status %s\n", res.Order.ID, res.Order.TotalAmount.StringFixed(2), res.Order.Status)
	return nil
}

func idArg(args []string, i int) (int64, error) {
	if len(args) <= i {
		return 0, errors.New("missing product id")
	}
	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad product id %q", args[i])
	}
	return id, nil
}
