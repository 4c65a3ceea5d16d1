package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

func printKitty(w io.Writer, format string, kitty domain.Kitty) error {
	if format == "json" {
		return writeJSON(w, kitty)
	}
	return writeTable(w, []domain.Kitty{kitty})
}

func printKittyList(w io.Writer, format string, kitties []domain.Kitty) error {
	if kitties == nil {
		kitties = []domain.Kitty{}
	}
	if format == "json" {
		return writeJSON(w, kitties)
	}
	return writeTable(w, kitties)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, kitties []domain.Kitty) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tGENDER\tPRICE\tDNA")
	for _, k := range kitties {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", k.ID, k.Owner, k.Gender, k.Price, hex.EncodeToString(k.Dna))
	}
	return tw.Flush()
}
