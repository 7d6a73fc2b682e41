package cli

import (
	"fmt"
	"io"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// renderView writes a projection as text. URLs that are not absolute
// http(s) URLs are left out rather than shown as links.
func renderView(w io.Writer, v reconcile.View) {
	c := v.Counts()
	fmt.Fprintf(w, "%d pending, %d in flight, %d completed\n", c.Pending, c.InFlight, c.Completed)

	if len(v.InFlight) > 0 {
		fmt.Fprintln(w, "In flight:")
		for _, j := range v.InFlight {
			fmt.Fprintf(w, "  %-9s %3d%%  %s", j.State, j.Progress, j.Name)
			if topic.IsAbsoluteURL(j.SourceURL) {
				fmt.Fprintf(w, "  %s", j.SourceURL)
			}
			fmt.Fprintln(w)
		}
	}

	if len(v.Completed) > 0 {
		fmt.Fprintln(w, "Completed:")
		for _, j := range v.Completed {
			renderCompleted(w, j.Name, j.ResultURL, j.SourceURL)
		}
	}
}

// renderCompleted writes one finished job: the upscaled image, then the
// original it came from.
func renderCompleted(w io.Writer, name, resultURL, sourceURL string) {
	fmt.Fprintf(w, "  ✓ %s", name)
	if topic.IsAbsoluteURL(resultURL) {
		fmt.Fprintf(w, "  %s", resultURL)
	}
	if topic.IsAbsoluteURL(sourceURL) {
		fmt.Fprintf(w, "  from %s", sourceURL)
	}
	fmt.Fprintln(w)
}
