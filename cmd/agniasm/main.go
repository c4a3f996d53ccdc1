// Command agniasm is the Agni assembler command-line front end: it turns
// a line-oriented Agni listing into a checksummed executable image, and
// can pretty-print an already-built image for debugging.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/kiplingw/agni-go/asm"
	"github.com/kiplingw/agni-go/exe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agniasm",
		Short: "Assemble and inspect Agni executable images",
	}
	root.AddCommand(newBuildCmd(), newDumpCmd())
	return root
}

func newBuildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build <listing.agl>",
		Short: "Assemble a listing into a .age executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(args[0], out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (defaults to the input with a .age extension)")
	return cmd
}

func runBuild(path, out string) error {
	if out == "" {
		out = trimExt(path) + ".age"
	}

	lines, err := readLines(path)
	if err != nil {
		return fmt.Errorf("agniasm: %w", err)
	}

	log := logrus.New()
	image, err := asm.Assemble(path, lines, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = os.Remove(out)
		return err
	}

	if err := os.WriteFile(out, image, 0o644); err != nil {
		return fmt.Errorf("agniasm: writing %s: %w", out, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(image))
	return nil
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <out.age>",
		Short: "Pretty-print the header and tables of an executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args[0])
		},
	}
}

func runDump(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("agniasm: %w", err)
	}
	if !exe.CheckSignature(image) {
		return fmt.Errorf("agniasm: %s: not an Agni executable", path)
	}
	if stored, computed, ok, err := exe.VerifyChecksum(image); err != nil {
		return fmt.Errorf("agniasm: %s: %w", path, err)
	} else if !ok {
		fmt.Printf("warning: checksum mismatch (stored %08x, computed %08x)\n", stored, computed)
	}

	x, err := exe.Decode(image)
	if err != nil {
		return fmt.Errorf("agniasm: %s: %w", path, err)
	}

	h := x.Header
	fmt.Printf("agni %d.%d (requires %d.%d)\n", h.AvailableMajor, h.AvailableMinor, h.RequiredMajor, h.RequiredMinor)
	if h.HostStringIndex != exe.HostStringIndexNone {
		fmt.Printf("host: %s %d.%d\n", x.Strings[h.HostStringIndex], h.HostMajor, h.HostMinor)
	} else {
		fmt.Println("host: (none declared)")
	}
	fmt.Printf("global data: %d slots\n", h.GlobalDataSize)
	fmt.Printf("stack size: %d\n", h.StackSize)
	fmt.Printf("instructions: %d\n", len(x.Instructions))

	fmt.Printf("\nfunctions (%d):\n", len(x.Functions))
	for i, f := range x.Functions {
		main := ""
		if h.MainIndex != exe.MainIndexNone && uint32(i) == h.MainIndex {
			main = " (Main)"
		}
		fmt.Printf("  %3d %-24s entry=%-6d params=%-3d locals=%d%s\n", i, f.Name, f.EntryPoint, f.ParameterCount, f.LocalDataSize, main)
	}

	fmt.Printf("\nhost functions (%d):\n", len(x.HostFunctions))
	for i, hf := range x.HostFunctions {
		fmt.Printf("  %3d %s\n", i, hf.Name)
	}

	fmt.Printf("\nstrings (%d):\n", len(x.Strings))
	for i, s := range x.Strings {
		fmt.Printf("  %3d %q\n", i, s)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func trimExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
