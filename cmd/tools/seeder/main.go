package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/trustflowpay/internal/config"
	"github.com/noah-isme/trustflowpay/internal/order"
)

// seeder inserts demo orders so the payment flow can be exercised against the
// sandbox gateway.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := order.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	store := order.NewPGStore(pool)
	seeded := 0
	for _, o := range demoOrders(cfg.Credentials().CurrencyCode) {
		if _, err := store.Get(ctx, o.ID); err == nil {
			continue
		} else if !errors.Is(err, order.ErrNotFound) {
			log.Fatalf("Failed to look up order %s: %v", o.ID, err)
		}
		if err := store.Create(ctx, o); err != nil {
			log.Fatalf("Failed to seed order %s: %v", o.ID, err)
		}
		seeded++
	}
	log.Printf("Seeding completed: %d new orders", seeded)
}

func demoOrders(currency string) []order.Order {
	customers := []order.Address{
		{FirstName: "Budi", LastName: "Santoso", Line1: "Jl. Merdeka 10", City: "Jakarta", State: "JK", Country: "ID", Postcode: "10110", Phone: "+62811000001", Email: "budi@example.com"},
		{FirstName: "Siti", LastName: "Aminah", Line1: "Jl. Asia Afrika 8", City: "Bandung", State: "JB", Country: "ID", Postcode: "40111", Phone: "+62811000002", Email: "siti@example.com"},
		{FirstName: "Andi", Line1: "Jl. Pemuda 3", City: "Surabaya", Country: "ID", Postcode: "60271", Email: "andi@example.com"},
		{Email: "guest@example.com"},
	}
	totals := []string{"49.99", "150.00", "0.01", "1234.56", "10"}

	var out []order.Order
	for i, total := range totals {
		billing := customers[i%len(customers)]
		o := order.Order{
			ID:       fmt.Sprintf("demo-%03d", i+1),
			Status:   order.StatusPending,
			Total:    decimal.RequireFromString(total),
			Currency: currency,
			Billing:  billing,
		}
		if i%2 == 0 {
			shipping := billing
			o.Shipping = &shipping
		}
		out = append(out, o)
	}
	return out
}
