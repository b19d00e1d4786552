package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"recipebox/internal/app"
	"recipebox/internal/config"
	"recipebox/internal/model"
	"recipebox/internal/recipebox"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config file from the default location.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config, creates a RecipeApp and probes the remote once.
// The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*app.RecipeApp, error) {
	offline, _ := cmd.Flags().GetBool("offline")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewRecipeApp(cmd.Context(), cfg, app.Options{
		Offline: offline,
		Verbose: verbose,
		Passphrase: func() (string, error) {
			return app.ReadPassphrase("Passphrase: ")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	a.Connect(cmd.Context())
	return a, nil
}

// syncState describes where a just-applied mutation ended up.
func syncState(a *app.RecipeApp) string {
	if a.Online() {
		return "synced"
	}
	return "offline, queued"
}

var rootCmd = &cobra.Command{
	Use:          "recipebox",
	Short:        "Offline-first recipe collection",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:  %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Remote:     %s\n", cfg.Remote.Type)
		fmt.Printf("Encryption: %t\n", cfg.Encryption.Enabled)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate this device's key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := app.ReadPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := app.ReadPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		if err := app.InitKeys(cfg.Encryption, passphrase); err != nil {
			return err
		}

		fmt.Printf("Keys written to %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Println("Set encryption.enabled = true in the config to seal remote documents.")
		return nil
	},
}

var keysAddRecipientCmd = &cobra.Command{
	Use:   "add-recipient PUBLIC_KEY",
	Short: "Let another device read recipes written here",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.AddRecipient(cfg.Encryption, args[0]); err != nil {
			return err
		}
		fmt.Println("Recipient added.")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		keys, err := app.Recipients(cfg.Encryption)
		if err != nil {
			return err
		}
		for i, k := range keys {
			own := ""
			if i == 0 {
				own = "  [this device]"
			}
			fmt.Printf("%s%s\n", k, own)
		}
		return nil
	},
}

// addRecipeFlags registers the editable recipe fields on cmd.
func addRecipeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("title", "t", "", "Recipe title")
	cmd.Flags().Int("prep", 0, "Preparation time in minutes")
	cmd.Flags().Int("cook", 0, "Cooking time in minutes")
	cmd.Flags().Int("servings", 0, "Number of servings")
	cmd.Flags().StringP("ingredients", "i", "", "Ingredients")
	cmd.Flags().String("instructions", "", "Instructions")
	cmd.Flags().Int("rating", 0, "Rating from 0 to 5")
	cmd.Flags().Bool("active", true, "Mark the recipe active")
	cmd.Flags().Bool("private", false, "Mark the recipe private")
	cmd.Flags().Bool("published", false, "Mark the recipe published")
	cmd.Flags().Bool("shared", false, "Mark the recipe shared")
}

// applyRecipeFlags copies every flag the user set onto r. When all is true,
// defaults are applied too.
func applyRecipeFlags(cmd *cobra.Command, r *model.Recipe, all bool) {
	flags := cmd.Flags()
	set := func(name string) bool { return all || flags.Changed(name) }

	if set("title") {
		r.Title, _ = flags.GetString("title")
	}
	if set("prep") {
		r.PreparationTime, _ = flags.GetInt("prep")
	}
	if set("cook") {
		r.CookingTime, _ = flags.GetInt("cook")
	}
	if set("servings") {
		r.Servings, _ = flags.GetInt("servings")
	}
	if set("ingredients") {
		r.Ingredients, _ = flags.GetString("ingredients")
	}
	if set("instructions") {
		r.Instructions, _ = flags.GetString("instructions")
	}
	if set("rating") {
		r.Rating, _ = flags.GetInt("rating")
	}
	if set("active") {
		r.IsActive, _ = flags.GetBool("active")
	}
	if set("private") {
		r.IsPrivate, _ = flags.GetBool("private")
	}
	if set("published") {
		r.IsPublished, _ = flags.GetBool("published")
	}
	if set("shared") {
		r.IsShared, _ = flags.GetBool("shared")
	}
}

// add command
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a recipe",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var r model.Recipe
		applyRecipeFlags(cmd, &r, true)

		id, err := a.AddRecipe(cmd.Context(), &r)
		if err != nil {
			return fmt.Errorf("adding recipe: %w", err)
		}

		fmt.Printf("Added %s (%s)\n", id, syncState(a))
		return nil
	},
}

// edit command
var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.GetRecipe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		applyRecipeFlags(cmd, r, false)

		if err := a.UpdateRecipe(cmd.Context(), r); err != nil {
			return fmt.Errorf("updating recipe: %w", err)
		}

		fmt.Printf("Updated %s (%s)\n", r.ID, syncState(a))
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.GetRecipe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s\n\n", r.Title)
		fmt.Printf("ID:        %s\n", r.ID)
		fmt.Printf("Owner:     %s\n", r.Owner)
		fmt.Printf("Prep/Cook: %d/%d min\n", r.PreparationTime, r.CookingTime)
		fmt.Printf("Servings:  %d\n", r.Servings)
		fmt.Printf("Rating:    %d\n", r.Rating)
		fmt.Printf("Likes:     %d\n", r.TotalLikes)
		fmt.Printf("Flags:     %s\n", describeFlags(r))
		fmt.Printf("Updated:   %s\n", r.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		if r.ImageURL != "" {
			image := r.ImageURL
			if strings.HasPrefix(image, "data:") {
				image = "(embedded)"
			}
			fmt.Printf("Image:     %s\n", image)
		}
		if r.Ingredients != "" {
			fmt.Printf("\nIngredients:\n%s\n", r.Ingredients)
		}
		if r.Instructions != "" {
			fmt.Printf("\nInstructions:\n%s\n", r.Instructions)
		}
		return nil
	},
}

func describeFlags(r *model.Recipe) string {
	var set []string
	for _, name := range []string{model.FlagActive, model.FlagPrivate, model.FlagPublished, model.FlagShared} {
		if r.Flag(name) {
			set = append(set, strings.TrimPrefix(name, "is_"))
		}
	}
	if len(set) == 0 {
		return "-"
	}
	return strings.Join(set, ",")
}

// parseFilters turns "is_published" or "is_published=false" into a filter map.
func parseFilters(raw []string) (map[string]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]bool, len(raw))
	for _, f := range raw {
		name, value, found := strings.Cut(f, "=")
		want := true
		if found {
			v, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", f, err)
			}
			want = v
		}
		if !strings.HasPrefix(name, "is_") {
			name = "is_" + name
		}
		filters[name] = want
	}
	return filters, nil
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipes",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		owner, _ := cmd.Flags().GetString("owner")
		mine, _ := cmd.Flags().GetBool("mine")
		rawFilters, _ := cmd.Flags().GetStringSlice("filter")

		filters, err := parseFilters(rawFilters)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if mine {
			owner = a.DeviceID()
		}

		recipes := a.ListRecipes(cmd.Context(), model.Query{
			Search:  search,
			Filters: filters,
			Owner:   owner,
		})

		if len(recipes) == 0 {
			fmt.Println("No recipes found.")
			return nil
		}

		for _, r := range recipes {
			fmt.Printf("%s  %-30s  %3d likes  %s\n",
				r.ID,
				r.Title,
				r.TotalLikes,
				r.UpdatedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		if !a.Online() {
			fmt.Println("\n(offline: showing local recipes only)")
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteRecipe(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting recipe: %w", err)
		}

		fmt.Printf("Deleted %s (%s)\n", args[0], syncState(a))
		return nil
	},
}

// like command
var likeCmd = &cobra.Command{
	Use:   "like ID",
	Short: "Like a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.LikeRecipe(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("liking recipe: %w", err)
		}

		fmt.Printf("%s now has %d like(s) (%s)\n", r.Title, r.TotalLikes, syncState(a))
		return nil
	},
}

// image command
var imageCmd = &cobra.Command{
	Use:   "image ID PATH",
	Short: "Attach an image to a recipe",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.AttachImage(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("attaching image: %w", err)
		}

		if strings.HasPrefix(url, "data:") {
			fmt.Println("Image embedded in the recipe (remote unavailable).")
			return nil
		}
		fmt.Printf("Image uploaded: %s\n", url)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver queued changes to the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed (%d change(s) still queued): %w", result.Remaining, err)
		}

		fmt.Printf("Delivered %d of %d change(s), %d remaining\n", result.Delivered, result.Attempted, result.Remaining)
		return nil
	},
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "View changes waiting for the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		items := a.Pending()
		if len(items) == 0 {
			fmt.Println("Nothing queued.")
			return nil
		}

		for _, item := range items {
			fmt.Printf("%s  %-6s  %s  %s\n",
				item.EnqueuedAt.Local().Format("2006-01-02 15:04:05"),
				item.Action,
				item.TargetID(),
				item.ID,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync passes recorded.")
			return nil
		}

		for _, run := range runs {
			d := run.FinishedAt.Sub(run.StartedAt)
			fmt.Printf("#%d  %s  %d/%d delivered  %d remaining  %s\n",
				run.ID,
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.Delivered,
				run.Attempted,
				run.Remaining,
				d.Truncate(time.Millisecond).String(),
			)
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor connectivity and sync automatically",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Watching for connectivity changes. Press Ctrl-C to stop.")
		err = a.Watch(cmd.Context(), func(e recipebox.Event) {
			now := time.Now().Format("15:04:05")
			switch e.Kind {
			case recipebox.EventConnectivity:
				state := "offline"
				if e.Online {
					state = "online"
				}
				fmt.Printf("%s  %s\n", now, state)
			case recipebox.EventSynced:
				fmt.Printf("%s  delivered %d of %d, %d remaining\n", now, e.Result.Delivered, e.Result.Attempted, e.Result.Remaining)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("offline", false, "Do not contact the remote")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysAddRecipientCmd)
	keysCmd.AddCommand(keysListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(addCmd)
	addRecipeFlags(addCmd)
	rootCmd.AddCommand(editCmd)
	addRecipeFlags(editCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("search", "s", "", "Match title or ingredients")
	listCmd.Flags().String("owner", "", "Only recipes by this owner")
	listCmd.Flags().Bool("mine", false, "Only recipes by this device")
	listCmd.Flags().StringSliceP("filter", "f", nil, "Flag filter such as published or private=false")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of sync passes to show")
	rootCmd.AddCommand(watchCmd)
}
