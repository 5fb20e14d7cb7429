/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
ravel-inspect - Ravel Node Data Inspector

Reads a node's on-disk meta-log and resource logs directly (the node
does not need to be running) and reports what's durable: the known
resource names, their log range, current term, and snapshot state.
Useful for post-mortem debugging and for verifying a backup copy of a
node's data directory before restoring it.

Usage:
    ravel-inspect --dir /var/lib/ravel/node1             # summarize every resource
    ravel-inspect --dir /var/lib/ravel/node1 --resource orders
    ravel-inspect --dir /var/lib/ravel/node1 --json
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"ravel/internal/raftlog"
	"ravel/pkg/cli"
)

const (
	version         = "1.0.0"
	copyright       = "Copyright (c) 2026 Firefly Software Solutions Inc."
	metaLogName     = "meta"
	resourcePrefix  = "resource-"
	defaultSegBytes = 64 << 20
)

func main() {
	dataDir := flag.String("dir", "", "Node data directory to inspect")
	resource := flag.String("resource", "", "Inspect only this resource (default: all)")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	locale := flag.String("locale", "und", "BCP 47 language tag used to order resource names")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *dataDir == "" {
		cli.ErrMissingArgument("--dir", "ravel-inspect --dir <path> [--resource NAME] [--json]").Exit()
	}

	names, err := listResources(*dataDir)
	if err != nil {
		cli.NewCLIError("Failed to read data directory").
			WithDetail(err.Error()).
			WithSuggestion("Check that --dir points at a node's data directory").
			Exit()
	}

	tag, err := language.Parse(*locale)
	if err != nil {
		tag = language.Und
	}
	collate.New(tag).SortStrings(names)

	if *resource != "" {
		names = filterNames(names, *resource)
		if len(names) == 0 {
			cli.ErrUnknownResource(*resource).Exit()
		}
	}

	summaries := make([]resourceSummary, 0, len(names))
	for _, name := range names {
		s, err := inspectResource(*dataDir, name)
		if err != nil {
			cli.PrintWarning("Skipping %s: %v", name, err)
			continue
		}
		summaries = append(summaries, s)
	}

	meta, hasMeta, err := inspectMeta(*dataDir)
	if err != nil {
		cli.PrintWarning("Could not read meta-log: %v", err)
	}

	if *jsonOutput {
		outputJSON(hasMeta, meta, summaries)
		return
	}
	outputHuman(*dataDir, hasMeta, meta, summaries)
}

// resourceSummary is the durable state of one resource's log, read
// directly off disk without starting a node.
type resourceSummary struct {
	Name              string `json:"name"`
	FirstIndex        uint64 `json:"first_index"`
	LastIndex         uint64 `json:"last_index"`
	LastTerm          uint64 `json:"last_term"`
	CurrentTerm       uint64 `json:"current_term"`
	VotedFor          string `json:"voted_for,omitempty"`
	HasSnapshot       bool   `json:"has_snapshot"`
	SnapshotIndex     uint64 `json:"snapshot_index,omitempty"`
	SnapshotTerm      uint64 `json:"snapshot_term,omitempty"`
	SnapshotBlobBytes int    `json:"snapshot_blob_bytes,omitempty"`
}

// listResources scans dir for resource-*.meta files and returns the
// resource names they belong to, derived by stripping the prefix and
// the .meta suffix.
func listResources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if !strings.HasSuffix(n, ".meta") {
			continue
		}
		n = strings.TrimSuffix(n, ".meta")
		if !strings.HasPrefix(n, resourcePrefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(n, resourcePrefix))
	}
	return names, nil
}

func filterNames(names []string, want string) []string {
	for _, n := range names {
		if n == want {
			return []string{n}
		}
	}
	return nil
}

func inspectResource(dir, name string) (resourceSummary, error) {
	log := raftlog.NewFileLog(dir, resourcePrefix+name, defaultSegBytes)
	if err := log.Open(); err != nil {
		return resourceSummary{}, fmt.Errorf("open log: %w", err)
	}
	defer log.Close()

	meta, err := log.LoadMetadata()
	if err != nil {
		return resourceSummary{}, fmt.Errorf("load metadata: %w", err)
	}

	s := resourceSummary{
		Name:        name,
		FirstIndex:  log.FirstIndex(),
		LastIndex:   log.LastIndex(),
		LastTerm:    log.LastTerm(),
		CurrentTerm: meta.CurrentTerm,
		VotedFor:    meta.VotedFor,
	}

	if snap, ok, err := log.LoadSnapshot(); err == nil && ok {
		s.HasSnapshot = true
		s.SnapshotIndex = snap.LastIncludedIndex
		s.SnapshotTerm = snap.LastIncludedTerm
		s.SnapshotBlobBytes = len(snap.Blob)
	}

	return s, nil
}

// inspectMeta reads the cluster meta-log (membership and resource
// registry) the same way inspectResource reads a resource log, but the
// meta-log's files carry no "resource-" prefix.
func inspectMeta(dir string) (resourceSummary, bool, error) {
	metaPath := filepath.Join(dir, metaLogName+".meta")
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return resourceSummary{}, false, nil
	}

	log := raftlog.NewFileLog(dir, metaLogName, defaultSegBytes)
	if err := log.Open(); err != nil {
		return resourceSummary{}, true, err
	}
	defer log.Close()

	meta, err := log.LoadMetadata()
	if err != nil {
		return resourceSummary{}, true, err
	}

	s := resourceSummary{
		Name:        metaLogName,
		FirstIndex:  log.FirstIndex(),
		LastIndex:   log.LastIndex(),
		LastTerm:    log.LastTerm(),
		CurrentTerm: meta.CurrentTerm,
		VotedFor:    meta.VotedFor,
	}
	if snap, ok, err := log.LoadSnapshot(); err == nil && ok {
		s.HasSnapshot = true
		s.SnapshotIndex = snap.LastIncludedIndex
		s.SnapshotTerm = snap.LastIncludedTerm
		s.SnapshotBlobBytes = len(snap.Blob)
	}
	return s, true, nil
}

func outputHuman(dir string, hasMeta bool, meta resourceSummary, summaries []resourceSummary) {
	fmt.Printf("\n%s\n", cli.Highlight("Ravel data directory: "+dir))

	if hasMeta {
		fmt.Printf("\n%s\n", cli.Highlight("META-LOG"))
		printSummaryLines(meta)
	}

	fmt.Printf("\n%s (%d)\n", cli.Highlight("RESOURCES"), len(summaries))
	if len(summaries) == 0 {
		fmt.Println("  (none found)")
		return
	}

	t := cli.NewTable("NAME", "FIRST", "LAST", "TERM", "SNAPSHOT")
	for _, s := range summaries {
		snap := cli.Dimmed("none")
		if s.HasSnapshot {
			snap = fmt.Sprintf("index=%d term=%d bytes=%d", s.SnapshotIndex, s.SnapshotTerm, s.SnapshotBlobBytes)
		}
		t.AddRow(s.Name, fmt.Sprintf("%d", s.FirstIndex), fmt.Sprintf("%d", s.LastIndex), fmt.Sprintf("%d", s.CurrentTerm), snap)
	}
	t.Print()
}

func printSummaryLines(s resourceSummary) {
	cli.KeyValue("First index", fmt.Sprintf("%d", s.FirstIndex), 14)
	cli.KeyValue("Last index", fmt.Sprintf("%d", s.LastIndex), 14)
	cli.KeyValue("Last term", fmt.Sprintf("%d", s.LastTerm), 14)
	cli.KeyValue("Current term", fmt.Sprintf("%d", s.CurrentTerm), 14)
	if s.VotedFor != "" {
		cli.KeyValue("Voted for", s.VotedFor, 14)
	}
	if s.HasSnapshot {
		cli.KeyValue("Snapshot", fmt.Sprintf("index=%d term=%d bytes=%d", s.SnapshotIndex, s.SnapshotTerm, s.SnapshotBlobBytes), 14)
	}
}

func outputJSON(hasMeta bool, meta resourceSummary, summaries []resourceSummary) {
	type report struct {
		Meta      *resourceSummary  `json:"meta,omitempty"`
		Resources []resourceSummary `json:"resources"`
	}
	r := report{Resources: summaries}
	if hasMeta {
		r.Meta = &meta
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		cli.PrintError("Failed to format JSON: %v", err)
		return
	}
	fmt.Println(string(data))
}

func printVersion() {
	fmt.Println()
	fmt.Printf("  %s %sv%s%s\n", cli.Highlight("Ravel Inspect"), cli.Dim, version, cli.Reset)
	fmt.Printf("  %sNode Data Inspector%s\n\n", cli.Dim, cli.Reset)
	fmt.Printf("  %s%s%s\n\n", cli.Dim, copyright, cli.Reset)
}

func printUsage() {
	fmt.Printf("\n%s\n", cli.Highlight("Ravel Inspect"))
	fmt.Printf("%s  Reads a node's meta-log and resource logs directly off disk.%s\n\n", cli.Dim, cli.Reset)

	fmt.Printf("%sUsage:%s ravel-inspect --dir <path> [options]\n\n", cli.Bold, cli.Reset)

	fmt.Printf("%s%sOPTIONS%s\n\n", cli.Bold, cli.Cyan, cli.Reset)
	fmt.Printf("    %s--dir%s <path>        Node data directory (required)\n", cli.Green, cli.Reset)
	fmt.Printf("    %s--resource%s <name>   Inspect only this resource\n", cli.Green, cli.Reset)
	fmt.Printf("    %s--locale%s <tag>      BCP 47 tag for ordering resource names (default: und)\n", cli.Green, cli.Reset)
	fmt.Printf("    %s--json%s              Output as JSON\n", cli.Green, cli.Reset)
	fmt.Printf("    %s--version%s, %s-v%s    Show version information\n", cli.Green, cli.Reset, cli.Green, cli.Reset)
	fmt.Printf("    %s--help%s, %s-h%s       Show this help message\n\n", cli.Green, cli.Reset, cli.Green, cli.Reset)

	fmt.Printf("%s%sEXAMPLES%s\n\n", cli.Bold, cli.Cyan, cli.Reset)
	fmt.Printf("%s    # Summarize every resource in a node's data directory%s\n", cli.Dim, cli.Reset)
	fmt.Println("    ravel-inspect --dir /var/lib/ravel/node1")
	fmt.Println()
	fmt.Printf("%s    # Inspect one resource%s\n", cli.Dim, cli.Reset)
	fmt.Println("    ravel-inspect --dir /var/lib/ravel/node1 --resource orders")
	fmt.Println()
}
