// Package main is a diagnostic tool for testing database connectivity and
// inspecting live entitlement data. It connects to the database, prints a
// summary of the entitlements and vouchers tables, and exits with a non-zero
// code on any failure so it can be embedded in health checks or CI/CD
// pipeline steps to gate deployments on a reachable, migrated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "entitlements"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=entitlements password=%s dbname=entitlements sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	// Entitlement counts per kind
	fmt.Println("=== ENTITLEMENTS ===")
	rows, err := db.Query(`
		SELECT kind, COUNT(*), COUNT(DISTINCT owner_id)
		FROM entitlements
		GROUP BY kind
		ORDER BY kind`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var total, owners int
		if err := rows.Scan(&kind, &total, &owners); err != nil {
			log.Printf("Warning: failed to scan entitlement row: %v", err)
			continue
		}
		fmt.Printf("Kind %-8s: %d grants across %d owners\n", kind, total, owners)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}

	// Voucher lifecycle summary
	fmt.Println("\n=== VOUCHERS ===")
	var issued, redeemed, reserved int
	err = db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE redeemed_at IS NOT NULL),
			COUNT(*) FILTER (WHERE created_for IS NOT NULL)
		FROM vouchers`).Scan(&issued, &redeemed, &reserved)
	if err != nil {
		log.Fatalf("Voucher query failed: %v", err)
	}
	fmt.Printf("Issued: %d, redeemed: %d, reserved for a specific owner: %d\n", issued, redeemed, reserved)

	// Recent redemptions
	fmt.Println("\n=== RECENT REDEMPTIONS ===")
	rows2, err := db.Query(`
		SELECT code, redeemed_by, redeemed_at
		FROM vouchers
		WHERE redeemed_at IS NOT NULL
		ORDER BY redeemed_at DESC
		LIMIT 10`)
	if err != nil {
		log.Fatalf("Redemption query failed: %v", err)
	}
	defer rows2.Close()

	for rows2.Next() {
		var code, redeemedBy, redeemedAt string
		if err := rows2.Scan(&code, &redeemedBy, &redeemedAt); err != nil {
			log.Printf("Warning: failed to scan redemption row: %v", err)
			continue
		}
		fmt.Printf("%s redeemed by %s at %s\n", code, redeemedBy, redeemedAt)
	}
	if err := rows2.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}

	fmt.Println("\nDatabase check completed")
}
