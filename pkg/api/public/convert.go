package public

import (
	"bufio"
	"io"
	"net/url"
	"strings"

	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
)

// convertOnWorker drives the single-session conversion exchange of
// spec.md §4.5: send "load url=<encoded>", then "saveas url=<jailed>.
// <format> format=<format> options=", and block until the worker's
// response carries a "saveas:" completion line. The worker is expected
// to have written outPath by the time that line arrives; the unit tests
// stand in a scripted worker stub that answers with that line (spec.md
// §8's conversion round-trip law).
func convertOnWorker(worker io.ReadWriter, srcPath, outPath, format string) error {
	encoded := (&url.URL{Path: srcPath}).EscapedPath()
	if _, err := worker.Write([]byte("load url=" + encoded + "\n")); err != nil {
		return apperrors.NewInternalError("send load command to worker", err)
	}
	if _, err := worker.Write([]byte("saveas url=" + outPath + " format=" + format + " options=\n")); err != nil {
		return apperrors.NewInternalError("send saveas command to worker", err)
	}

	scanner := bufio.NewScanner(worker)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "saveas:") {
			return nil
		}
		if strings.HasPrefix(line, "error:") {
			return apperrors.NewInternalError("worker reported conversion error: "+line, nil)
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.NewInternalError("read worker response", err)
	}
	return apperrors.NewInternalError("worker closed without a saveas completion", nil)
}
