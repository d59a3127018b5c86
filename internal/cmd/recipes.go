package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/pkg/recipe"
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Manage workload recipes",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipes in the recipes directory",
	Long: `List prints the names of all recipe files (.yml, .yaml, .json) in the
recipes directory. Invalid recipes are listed too; they fail at deploy time.

Examples:
  slurmbench recipes list
  slurmbench recipes list --json`,
	RunE: runRecipesList,
}

var recipesInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show summary information for a recipe",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipesInfo,
}

var recipesInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a starter recipe file",
	Long: `Init writes a commented template recipe into the recipes directory.
Fails if a recipe with the given name already exists.

Examples:
  slurmbench recipes init my-benchmark`,
	Args: cobra.ExactArgs(1),
	RunE: runRecipesInit,
}

var recipesJSON bool

func init() {
	rootCmd.AddCommand(recipesCmd)
	recipesCmd.AddCommand(recipesListCmd)
	recipesCmd.AddCommand(recipesInfoCmd)
	recipesCmd.AddCommand(recipesInitCmd)
	recipesListCmd.Flags().BoolVar(&recipesJSON, "json", false, "Output as JSON")
}

func runRecipesList(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	names, err := app.manager.ListRecipes()
	if err != nil {
		return exitError(foundry.ExitFileReadError, fmt.Sprintf("Failed to read recipes directory %s", app.recipes.Dir()), err)
	}
	if recipesJSON {
		return printJSON(names)
	}
	if len(names) == 0 {
		_, _ = fmt.Fprintf(os.Stderr, "No recipes in %s\n", app.recipes.Dir())
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runRecipesInfo(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	info, err := app.manager.RecipeInfo(args[0])
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			return exitError(foundry.ExitFileNotFound, fmt.Sprintf("Recipe %q not found in %s", args[0], app.recipes.Dir()), err)
		}
		return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Recipe %q is invalid", args[0]), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", info.Name)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", info.Kind)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", info.FilePath)
	if info.Description != "" {
		_, _ = fmt.Fprintf(w, "Description:\t%s\n", info.Description)
	}
	return w.Flush()
}

func runRecipesInit(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	path, err := app.recipes.CreateTemplate(args[0])
	if err != nil {
		return exitError(foundry.ExitFileWriteError, fmt.Sprintf("Failed to create recipe %q", args[0]), err)
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
