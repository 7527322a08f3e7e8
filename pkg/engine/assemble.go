package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/logger"
)

// Assemble renders a plan into the final context payload: each skill's
// main body wrapped in a skill block, its included references nested as
// reference blocks. Reference bytes come from the catalog's lazy content
// cache; a reference that cannot be read is omitted with a warning and
// assembly continues, per the degrade-to-load-less policy.
func (e *Engine) Assemble(ctx context.Context, plan *budget.LoadPlan) (string, error) {
	idx := e.store.Index()
	var sb strings.Builder

	for _, entry := range plan.Entries {
		fmt.Fprintf(&sb, "<skill name=%q category=%q>\n%s\n", entry.Doc.ID, entry.Doc.Category, strings.TrimRight(entry.Doc.Content, "\n"))

		for _, ref := range entry.References {
			// Lookup by path: link text is display-only and not unique.
			content, err := idx.ReferenceContent(ctx, entry.Doc.ID, ref.Path)
			if err != nil {
				var resolution *catalog.ReferenceResolutionError
				if !errors.As(err, &resolution) {
					return "", errors.Wrapf(err, "failed to assemble skill %s", entry.Doc.ID)
				}
				logger.G(ctx).WithError(err).WithFields(map[string]interface{}{
					"skill":     entry.Doc.ID,
					"reference": ref.Path,
				}).Warn("reference omitted from payload")
				continue
			}
			fmt.Fprintf(&sb, "<reference name=%q>\n%s\n</reference>\n", ref.Name, strings.TrimRight(content, "\n"))
		}

		sb.WriteString("</skill>\n")
	}

	return sb.String(), nil
}
