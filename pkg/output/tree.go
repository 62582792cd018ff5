package output

import (
	"context"
	"sort"
	"strings"

	"github.com/3leaps/lakemap/pkg/tree"
)

// WriteTree emits one node record per node of root, parents before
// children, plus an error record for every node whose listing failed.
// The returned summary has counts and partial-result reasons filled in;
// the caller sets the duration.
func WriteTree(ctx context.Context, w Writer, root *tree.Node) (*SummaryRecord, error) {
	sum := &SummaryRecord{}
	reasons := make(map[string]struct{})

	var walk func(n *tree.Node, parentID string, depth int) error
	walk = func(n *tree.Node, parentID string, depth int) error {
		if err := w.WriteNode(ctx, NewNodeRecord(n, parentID, depth)); err != nil {
			return err
		}

		switch n.Kind {
		case tree.KindContainer:
			sum.Containers++
		case tree.KindFolder:
			sum.Folders++
		case tree.KindDataset:
			sum.Datasets++
		}

		switch n.Status.State {
		case tree.StatePartial:
			sum.Partial = true
			sum.Errors++
			reasons["listing-failed"] = struct{}{}
			if err := w.WriteError(ctx, &ErrorRecord{
				Code:      ErrCodePartial,
				Message:   strings.Join(n.Status.Errors, "; "),
				Container: containerOf(n.Path),
				Path:      n.Path,
			}); err != nil {
				return err
			}
		case tree.StateTruncated:
			sum.Partial = true
			reasons[string(n.Status.Reason)] = struct{}{}
		}

		for _, c := range n.Children {
			if err := walk(c, n.ID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root, "", 0); err != nil {
		return nil, err
	}

	for r := range reasons {
		sum.Reasons = append(sum.Reasons, r)
	}
	sort.Strings(sum.Reasons)
	return sum, nil
}

func containerOf(path string) string {
	name, _, _ := strings.Cut(path, "/")
	return name
}
