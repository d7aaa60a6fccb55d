package db

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return errors.New("missing migrate action")
		}
		return nil
	}

	// the schema is left alone: migrations manage it
	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	return database.runMigrate(Migrations(), args, out)
}

func (db *DB) runMigrate(migrations fs.FS, args []string, out io.Writer) error {
	switch action := args[0]; action {
	case "up":
		if err := db.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
		return db.printStatus(migrations, out)

	case "down":
		if err := db.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
		return db.printStatus(migrations, out)

	case "status":
		return db.printStatus(migrations, out)

	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: ergmonitor migrate %s <version_number>", action)
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if action == "force" {
			err = db.MigrateForce(migrations, int(version))
		} else {
			err = db.MigrateTo(migrations, uint(version))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Schema at version %d\n", version)
		return nil

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: %s", ErrUnknownMigrateAction, action)
	}
}

func (db *DB) printStatus(migrations fs.FS, out io.Writer) error {
	status, err := db.MigrationStatus(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
	switch {
	case status.Dirty:
		fmt.Fprintln(out, "A migration failed mid-execution. Inspect the database, then run: ergmonitor migrate force <version>")
	case status.Pending():
		fmt.Fprintf(out, "%d migration(s) pending. Run: ergmonitor migrate up\n", status.LatestVersion-status.CurrentVersion)
	}
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Database Migration Commands

Usage: ergmonitor migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  help            Show this help message

Options:
  -db <path>      Path to database file (default: erg_data.db)
`)
}
