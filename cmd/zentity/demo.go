// Demo command: runs a small end-to-end scenario against the
// configured backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zentity-io/zentity/pkg/entity"
	"github.com/zentity-io/zentity/pkg/session"
	"github.com/zentity-io/zentity/pkg/sqlite"
)

// demoSchema builds a two-type schema: orders referencing customers.
func demoSchema() (*entity.Schema, error) {
	schema := entity.NewSchema()
	customer := &entity.Descriptor{
		Name: "Customer",
		Fields: []entity.Field{
			{Name: "ID", Kind: entity.KindString, PrimaryKey: true},
			{Name: "Name", Kind: entity.KindString},
		},
		Relationships: []entity.Relationship{
			{Name: "Orders", Target: "Order", Cardinality: entity.ToMany, ForeignKey: "CustomerID"},
		},
	}
	order := &entity.Descriptor{
		Name: "Order",
		Fields: []entity.Field{
			{Name: "ID", Kind: entity.KindString, PrimaryKey: true},
			{Name: "CustomerID", Kind: entity.KindString, Nullable: true},
			{Name: "Total", Kind: entity.KindFloat},
		},
		Relationships: []entity.Relationship{
			{Name: "Customer", Target: "Customer", Cardinality: entity.ToOne, ForeignKey: "CustomerID"},
		},
	}
	for _, d := range []*entity.Descriptor{customer, order} {
		if err := schema.Register(d); err != nil {
			return nil, err
		}
	}
	if err := schema.Freeze(); err != nil {
		return nil, err
	}
	return schema, nil
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a sample load-mutate-commit cycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(resolveConfigDir())
		if err != nil {
			fmt.Fprintln(os.Stderr, "demo:", err)
			os.Exit(exitUserError)
		}
		if err := runDemo(cmd.Context(), cfg); err != nil {
			fmt.Fprintln(os.Stderr, "demo:", err)
			os.Exit(exitSysError)
		}
		return nil
	},
}

func runDemo(ctx context.Context, cfg entity.Config) error {
	schema, err := demoSchema()
	if err != nil {
		return err
	}
	drv, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer drv.Close()
	if sq, ok := drv.(sqlite.Driver); ok {
		if err := sq.CreateTables(ctx, schema); err != nil {
			return err
		}
	}

	sess, err := session.New(drv, schema)
	if err != nil {
		return err
	}
	defer sess.Close()

	customer, err := sess.GetOrCreate(ctx, "Customer", map[string]any{"Name": "Ada"})
	if err != nil {
		return err
	}
	orderDesc, err := schema.Lookup("Order")
	if err != nil {
		return err
	}
	order := entity.NewRecord(orderDesc)
	if err := order.Set("Total", 100.0); err != nil {
		return err
	}
	if err := sess.RegisterNew(order); err != nil {
		return err
	}
	orders, err := sess.Collection(customer, "Orders")
	if err != nil {
		return err
	}
	if err := orders.Add(order); err != nil {
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return err
	}

	if err := order.Set("Total", 150.0); err != nil {
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return err
	}

	members, err := orders.All(ctx)
	if err != nil {
		return err
	}
	name, _ := customer.Get("Name")
	fmt.Printf("customer %v has %d order(s)\n", name, len(members))
	for _, m := range members {
		id, _ := m.Get("ID")
		total, _ := m.Get("Total")
		fmt.Printf("  order %v total %v\n", id, total)
	}
	return nil
}
