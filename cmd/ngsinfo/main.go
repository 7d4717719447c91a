// Command ngsinfo prints the parameter ABI of the built-in module kinds.
//
// Usage:
//
//	ngsinfo [flags] [kind ...]
//
// Without arguments it prints every registered kind.
//
// Examples:
//
//	ngsinfo
//	ngsinfo reverb delay
//	ngsinfo -blob envelope
//	ngsinfo -list
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/cwbudde/algo-ngs/ngs/module"
)

func main() {
	blob := flag.Bool("blob", false, "also print the default parameter blob as hex")
	list := flag.Bool("list", false, "list available kind names")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ngsinfo [flags] [kind ...]\n\n")
		fmt.Fprintf(os.Stderr, "Prints module ids, parameter struct ids and blob sizes.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	reg := module.DefaultRegistry()

	if *list {
		printList(os.Stdout, reg)
		return
	}

	kinds, unknown := resolveKinds(reg, flag.Args())
	for _, name := range unknown {
		fmt.Fprintf(os.Stderr, "warning: unknown kind %q (use -list to see available)\n", name)
	}

	if len(kinds) == 0 {
		fmt.Fprintf(os.Stderr, "error: no matching module kinds\n")
		os.Exit(1)
	}

	if err := printTable(os.Stdout, reg, kinds, *blob); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printList(w io.Writer, reg *module.Registry) {
	names := make([]string, 0, len(reg.Kinds()))
	for _, k := range reg.Kinds() {
		names = append(names, k.String())
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// resolveKinds maps names to registered kinds; no names selects them all.
func resolveKinds(reg *module.Registry, names []string) (kinds []module.Kind, unknown []string) {
	if len(names) == 0 {
		return reg.Kinds(), nil
	}

	for _, name := range names {
		k, err := module.ParseKind(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		if _, ok := reg.Lookup(k); !ok {
			unknown = append(unknown, name)
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds, unknown
}

func printTable(w io.Writer, reg *module.Registry, kinds []module.Kind, withBlob bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := "Kind\tModule ID\tStruct ID\tSize\tBuffer\tRelease"
	if withBlob {
		header += "\tDefault blob"
	}
	if _, err := fmt.Fprintln(tw, header); err != nil {
		return err
	}

	for _, k := range kinds {
		e, _ := reg.Lookup(k)

		row := fmt.Sprintf("%s\t0x%04x\t0x%08x\t%d\t%d\t%t",
			k, e.ModuleID, e.Descriptor.StructID, e.Descriptor.Size, e.Descriptor.BufferSize, k.HasRelease())

		if withBlob {
			p, err := module.DefaultParams(k)
			if err != nil {
				return err
			}
			b, err := p.MarshalBinary()
			if err != nil {
				return err
			}
			row += "\t" + hex.EncodeToString(b)
		}

		if _, err := fmt.Fprintln(tw, row); err != nil {
			return err
		}
	}
	return tw.Flush()
}
