package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alertrelay/alertrelay/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	path := configPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing, loadErr := config.Load(path)
		if loadErr != nil {
			return fmt.Errorf("refusing to overwrite unreadable config: %w", loadErr)
		}
		if err := config.Save(existing, path); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", path)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, path); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", path)
	}

	fmt.Printf("\n%s alertrelay is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Enable a backend in %s\n", path)
	fmt.Println("     Telegram needs a bot token from @BotFather")
	fmt.Println("  2. Check it: alertrelay backends")
	fmt.Println("  3. Try it:   alertrelay send -b telegram -t <chat id> \"Hello!\"")
	fmt.Println("  4. Run it:   alertrelay gateway")
	return nil
}
