package db

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrUnknownMigrateAction is returned for an unrecognised subcommand.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand handles the 'migrate' subcommand dispatching. Output
// goes to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return errors.New("missing migrate action")
		}
		return nil
	}
	action := args[0]

	migrations, err := MigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}

	// Open without migrating: the schema is what is being managed.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")

	case "status":
		status, err := database.GetMigrationStatus(migrations)
		if err != nil {
			return err
		}
		printStatus(out, status)

	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: fatigue migrate %s <version_number>", action)
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[1], err)
		}
		if action == "version" {
			if err := database.MigrateTo(migrations, uint(v)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Migrated to version %d\n", v)
		} else {
			if err := database.MigrateForce(migrations, int(v)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Forced version to %d\n", v)
		}

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: %s", ErrUnknownMigrateAction, action)
	}
	return nil
}

func printStatus(out io.Writer, s MigrationStatus) {
	fmt.Fprintf(out, "Current version: %d\n", s.Current)
	fmt.Fprintf(out, "Latest version:  %d\n", s.Latest)
	switch {
	case s.Dirty:
		fmt.Fprintln(out, "State: DIRTY (run 'migrate force <version>' after fixing the schema)")
	case s.UpToDate():
		fmt.Fprintln(out, "State: up to date")
	default:
		fmt.Fprintf(out, "State: %d pending\n", s.Latest-s.Current)
	}
}

// PrintMigrateHelp prints usage information for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: fatigue migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show current and latest schema versions
  version <N>        Migrate up or down to version N
  force <N>          Set the version without running migrations (recovery only)
  help               Show this help
`)
}
