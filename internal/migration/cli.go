package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI renders Migrator operations for the overseer migrate command.
type CLI struct {
	m   *Migrator
	out io.Writer
}

// NewCLI wraps a migrator with terminal-friendly output on stdout.
func NewCLI(m *Migrator) *CLI {
	return &CLI{m: m, out: os.Stdout}
}

// SetOutput redirects CLI output, mainly for tests.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// Apply runs all pending migrations and reports the resulting version.
func (c *CLI) Apply(ctx context.Context) error {
	fmt.Fprintln(c.out, "Applying pending migrations...")
	if err := c.m.Apply(ctx); err != nil {
		return err
	}
	return c.printVersionLine(ctx, "Schema is up to date")
}

// Rollback undoes the most recent migration.
func (c *CLI) Rollback(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back the last migration...")
	if err := c.m.Rollback(ctx); err != nil {
		return err
	}
	return c.printVersionLine(ctx, "Rollback complete")
}

// Reset rolls back every migration.
func (c *CLI) Reset(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back all migrations...")
	if err := c.m.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Schema reset to empty.")
	return nil
}

// Goto migrates to an exact version.
func (c *CLI) Goto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.out, "Migrating to version %d...\n", version)
	if err := c.m.Goto(ctx, version); err != nil {
		return err
	}
	return c.printVersionLine(ctx, "Migration complete")
}

// Force overwrites the recorded version to recover a dirty schema.
func (c *CLI) Force(ctx context.Context, version int) error {
	if err := c.m.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Schema version forced to %d\n", version)
	return nil
}

// Version prints the recorded schema version.
func (c *CLI) Version(ctx context.Context) error {
	version, dirty, err := c.m.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(c.out, "No migrations applied yet.")
		return nil
	}
	if dirty {
		fmt.Fprintf(c.out, "Current version: %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(c.out, "Current version: %d\n", version)
	return nil
}

// Status prints every migration with its applied state plus a summary.
func (c *CLI) Status(ctx context.Context) error {
	plan, err := c.m.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range plan {
		status := "pending"
		switch {
		case s.Dirty:
			status = "dirty"
		case s.Applied:
			status = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	sum, err := c.m.Summarize(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nApplied %d of %d, %d pending\n", sum.Applied, sum.Total, sum.Pending)
	return nil
}

func (c *CLI) printVersionLine(ctx context.Context, prefix string) error {
	version, _, err := c.m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s, current version: %d\n", prefix, version)
	return nil
}
