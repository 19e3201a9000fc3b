package commands

import (
	"fmt"
	"strings"

	"boostchat/internal/config"
	"boostchat/internal/storage"
)

// SeedLegacy writes an old-format client record into the local store so
// the one-shot migration can be exercised against real data. The record
// argument is "FirstName,email[,whatsapp]".
func SeedLegacy(record string, cfg *config.Config) error {
	parts := strings.Split(record, ",")
	if len(parts) < 2 {
		return fmt.Errorf("invalid legacy record %q, want \"FirstName,email[,whatsapp]\"", record)
	}

	firstName := strings.TrimSpace(parts[0])
	email := strings.TrimSpace(parts[1])
	whatsapp := ""
	if len(parts) > 2 {
		whatsapp = strings.TrimSpace(parts[2])
	}
	if firstName == "" || email == "" {
		return fmt.Errorf("legacy record %q needs a first name and an email", record)
	}

	store, err := storage.NewBboltStore(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.SeedLegacyIdentity(firstName, email, whatsapp, ""); err != nil {
		return fmt.Errorf("failed to seed legacy identity: %w", err)
	}

	fmt.Printf("\nLegacy record seeded.\n")
	fmt.Printf("First name:   %s\n", firstName)
	fmt.Printf("Email:        %s\n", email)
	fmt.Println("\nStart the demo to watch it migrate to the unified identity.")
	return nil
}
