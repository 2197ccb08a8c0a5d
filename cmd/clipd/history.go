package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.clipd.dev/clipd/internal/item"
)

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the user's recent clips",
		Long: `Lists the user's clipboard history, most recent first. Timestamps
are the relay's, so the listing order matches delivery order.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runHistory(v) },
	}

	addClientFlags(cmd)
	cmd.Flags().Int("limit", 20, "maximum number of clips to list")
	cmd.Flags().Bool("json", false, "emit the raw JSON items")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runHistory(v *viper.Viper) error {
	setupLogging(v)

	userID := v.GetString("user")
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	items, err := fetchHistory(v.GetString("relay"), userID, v.GetString("token"), v.GetInt("limit"))
	if err != nil {
		return err
	}

	if v.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Printf("no clips for user %s\n", userID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEVICE\tTYPE\tSIZE\tPREVIEW")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			it.StampedAt.Local().Format("2006-01-02 15:04:05"),
			it.OriginDevice,
			it.Kind,
			len(it.Content),
			preview(it),
		)
	}
	return w.Flush()
}

// preview renders a short single-line summary of a clip payload.
func preview(it item.Item) string {
	if it.Kind == item.Image {
		return fmt.Sprintf("(%s image)", it.ImageEncoding)
	}
	s := it.Text()
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	if utf8.RuneCountInString(s) > 48 {
		runes := []rune(s)
		s = string(runes[:48]) + "…"
	}
	return s
}
