// Package main is a utility for minting the system service key. The service
// stores only the bcrypt hash of the key — never the raw value — so this tool
// is run once per deployment: the printed key goes to the calling platform's
// secret store, the printed hash goes into the service config under
// economy.service_key_hash (or FLT_ECONOMY_SERVICE_KEY_HASH).
package main

import (
	"fmt"
	"log"

	"github.com/flotilla-games/entitlement-service/internal/auth"
)

func main() {
	key, hash, err := auth.GenerateServiceKey()
	if err != nil {
		log.Fatalf("Failed to generate service key: %v", err)
	}

	fmt.Println("Service key (deliver to the platform, shown only once):")
	fmt.Println("  " + key)
	fmt.Println()
	fmt.Println("Config hash (economy.service_key_hash):")
	fmt.Println("  " + hash)
}
