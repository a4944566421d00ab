package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// parseFields разбирает аргументы name=value.
// Числа и true/false сохраняются как float64 и bool, пустое значение удаляет поле (nil)
func parseFields(args []string) (models.Fields, error) {
	fields := models.Fields{}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", arg)
		}
		fields[name] = parseValue(value)
	}
	return fields, nil
}

func parseValue(s string) any {
	switch {
	case s == "":
		return nil
	case s == "true":
		return true
	case s == "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// formatTime форматирует миллисекунды для вывода
func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}

func (c *Cli) printJSON(v any) error {
	enc := json.NewEncoder(c.io)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *Cli) printRecords(records []*models.Record) error {
	if len(records) == 0 {
		c.io.Println("No records found.")
		return nil
	}

	w := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTYPE\tBRAND\tCOLOR\tMODIFIED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Key, r.Type(), r.Brand(), r.Color(), formatTime(r.MutatedAt))
	}
	return w.Flush()
}

func (c *Cli) printRecord(r *models.Record) {
	c.io.Printf("Key:      %s\n", r.Key)
	if r.Deleted {
		c.io.Println("Status:   in recycle bin")
	}
	c.io.Printf("Created:  %s\n", formatTime(r.CreatedAt))
	c.io.Printf("Modified: %s\n", formatTime(r.MutatedAt))

	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.io.Printf("  %s: %v\n", name, r.Fields[name])
	}
}
