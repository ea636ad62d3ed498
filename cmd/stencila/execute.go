package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/stencila/stencila/internal/document"
	"github.com/stencila/stencila/internal/graph"
	"github.com/stencila/stencila/internal/kernel"
	"github.com/stencila/stencila/internal/schema"
)

var fenceRe = regexp.MustCompile("(?ms)^```([a-zA-Z0-9_-]*) *(exec)? *\n(.*?)^```")

var assignRe = regexp.MustCompile(`(?m)^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=[^=]`)

func executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <file>",
		Short: "Execute the code chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			source, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			root := document.NewRoot(path)
			g := graph.New(path)

			// Extract fenced code blocks as code chunks, relating them
			// through the symbols they assign and use.
			assigned := map[string]graph.Resource{}
			type chunkInfo struct {
				resource graph.Resource
				code     string
			}
			var chunks []chunkInfo
			for _, m := range fenceRe.FindAllStringSubmatch(string(source), -1) {
				lang, code := m[1], m[3]
				node := &schema.Node{
					Kind:                schema.KindCodeChunk,
					ID:                  schema.NewNodeID(schema.KindCodeChunk),
					ProgrammingLanguage: lang,
					Code:                code,
				}
				root.AddNode(node)
				resource := graph.CodeResource(path, node.ID, lang)
				g.AddResource(resource, code)
				chunks = append(chunks, chunkInfo{resource: resource, code: code})

				for _, am := range assignRe.FindAllStringSubmatch(code, -1) {
					symbol := graph.SymbolResource(path, am[1])
					g.AddResource(symbol, am[1])
					g.AddTriple(resource, graph.RelationAssign, symbol)
					assigned[am[1]] = symbol
				}
			}
			for _, chunk := range chunks {
				for symbolName, symbol := range assigned {
					if usesSymbol(chunk.code, symbolName) && !assignsSymbol(chunk.code, symbolName) {
						g.AddTriple(chunk.resource, graph.RelationUse, symbol)
					}
				}
			}

			plan, err := g.NewPlan(func(r graph.Resource) bool { return r.Kind == graph.KindCode })
			if err != nil {
				return err
			}
			if plan.TaskCount() == 0 {
				fmt.Println("No executable code chunks found")
				return nil
			}

			kernels := kernel.NewSpace(&kernel.EchoKernel{})
			patches := make(chan document.PatchRequest, 256)
			cancels := make(chan document.CancelRequest)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				document.RunApplicator(root, patches)
			}()

			err = document.Execute(cmd.Context(), plan, root, kernels, patches, cancels)
			close(patches)
			wg.Wait()
			if err != nil {
				return err
			}

			for _, id := range root.NodeIDs() {
				node := root.Node(id)
				status := "-"
				if s := node.GetExecuteStatus(); s != nil {
					status = string(*s)
				}
				fmt.Printf("%s  %-28s %s\n", node.ID, status, firstLine(node.Code))
			}
			return nil
		},
	}
}

func usesSymbol(code, symbol string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
	return re.MatchString(code)
}

func assignsSymbol(code, symbol string) bool {
	for _, m := range assignRe.FindAllStringSubmatch(code, -1) {
		if m[1] == symbol {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60] + "…"
	}
	return s
}
