package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/toggle"
	"github.com/spf13/cobra"
)

// statusResult is the JSON shape for commands acting on one target.
type statusResult struct {
	Target   string `json:"target"`
	Favorite bool   `json:"favorite"`
	Outcome  string `json:"outcome,omitempty"`
}

// listResult is the JSON shape of the list command.
type listResult struct {
	Artists  []favorite.Record `json:"artists,omitempty"`
	Concerts []favorite.Record `json:"concerts,omitempty"`
	Cached   bool              `json:"cached,omitempty"`
}

func outputJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputStatus(cmd *cobra.Command, asJSON bool, t favorite.Target, st toggle.State, outcome toggle.Outcome) error {
	res := statusResult{Target: t.String(), Favorite: st.IsFavorite()}
	if outcome != 0 {
		res.Outcome = outcome.String()
	}
	if asJSON {
		return outputJSON(cmd, res)
	}

	line := t.String() + ": " + favoriteLabel(st.IsFavorite())
	if outcome != 0 {
		line += " (" + strings.ReplaceAll(outcome.String(), "_", " ") + ")"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

func favoriteLabel(fav bool) string {
	if fav {
		return "favorited"
	}
	return "not favorited"
}

// writeRecords prints one section of the list in human form.
func writeRecords(w io.Writer, typ favorite.EntityType, records []favorite.Record) {
	heading := typ.Plural()
	fmt.Fprintf(w, "%s%s (%d)\n", strings.ToUpper(heading[:1]), heading[1:], len(records))
	for _, r := range records {
		line := fmt.Sprintf("  %-14s favorite #%d", r.Target().String(), r.FavoriteID)
		if !r.CreatedAt.IsZero() {
			line += "  since " + r.CreatedAt.Format("2006-01-02")
		}
		fmt.Fprintln(w, line)
	}
}
