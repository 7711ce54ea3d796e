package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/calvan/enf-analysis/pkg/enf"
)

// WriteReport writes one line per track (one per video if no track was
// correlated) as an aligned table.
func WriteReport(w io.Writer, results []*VideoResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VIDEO\tDATASET\tTRACK\tP_MEDIAN\tCORRELATION\tOFFSET\tDIFF\tREFERENCE\tSTATUS")
	for _, r := range results {
		if r == nil {
			continue
		}
		pMedian := "-"
		if r.Quality != nil {
			pMedian = fmt.Sprintf("%.4f", r.Quality.Median)
		}
		if len(r.Tracks) == 0 {
			fmt.Fprintf(tw, "%s\t%d\t-\t%s\t-\t-\t-\t%s\t%s\n", r.Path, r.VideoDataset.ID, pMedian, orDash(r.Reference), status(r.Err))
			continue
		}
		for _, tr := range r.Tracks {
			correlation, offset, diff := "-", "-", "-"
			if tr.Alignment != nil {
				correlation = fmt.Sprintf("%.4f", tr.Alignment.Score)
				offset = fmt.Sprint(tr.Alignment.Offset)
			}
			if tr.MatchingDiff != nil {
				diff = fmt.Sprint(*tr.MatchingDiff)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Path, r.VideoDataset.ID, tr.Track, pMedian, correlation, offset, diff, orDash(r.Reference), status(tr.Err))
		}
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return fmt.Sprintf("%s: %v", enf.FailureReasonOf(err), err)
}
