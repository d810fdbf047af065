package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [KEY [VALUE]]",
	Short: "Get or set config values",
	Long: `Without arguments, lists every key set in the config file.
With KEY, prints its value. With KEY and VALUE, stores it.
Keys are dotted paths, e.g. twtxt.nick or following.alice.`,
	Args: func(cmd *cobra.Command, args []string) error {
		return configArity(configRemove, configEdit, len(args))
	},
	RunE: runConfig,
}

var (
	configRemove bool
	configEdit   bool
)

func init() {
	configCmd.Flags().BoolVar(&configRemove, "remove", false, "Remove KEY from the config file")
	configCmd.Flags().BoolVar(&configEdit, "edit", false, "Open the config file in $EDITOR")
	rootCmd.AddCommand(configCmd)
}

// configArity validates the argument count for the given mode.
func configArity(remove, edit bool, n int) error {
	switch {
	case remove && edit:
		return errors.New("--remove and --edit are mutually exclusive")
	case edit && n != 0:
		return fmt.Errorf("--edit takes no arguments, got %d", n)
	case remove && n != 1:
		return fmt.Errorf("--remove takes exactly one KEY, got %d arguments", n)
	case n > 2:
		return fmt.Errorf("accepts at most 2 arguments, got %d", n)
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, len(args) == 2 || configEdit)
	if err != nil {
		return err
	}

	switch {
	case configEdit:
		return editFile(a.store.Path())

	case configRemove:
		removed, err := a.store.Unset(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s is not set", args[0])
		}
		return a.store.Save()

	case len(args) == 2:
		if err := a.store.Set(args[0], args[1]); err != nil {
			return err
		}
		return a.store.Save()

	case len(args) == 1:
		value, ok := a.store.Get(args[0])
		if !ok {
			return fmt.Errorf("%s is not set", args[0])
		}
		fmt.Fprintln(a.out, value)
		return nil
	}

	for _, key := range a.store.Keys() {
		value, _ := a.store.Get(key)
		fmt.Fprintf(a.out, "%s = %s\n", key, value)
	}
	return nil
}

func editFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command("sh", "-c", editor+` "$1"`, "sh", path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor %q: %w", editor, err)
	}
	return nil
}
