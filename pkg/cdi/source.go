package cdi

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// DefaultCDISpace is the OpenLCB memory space number conventionally
// used to publish the CDI XML document.
const DefaultCDISpace = 0xEF

// SourceReader is the CDI Source Reader, component A. It obtains the
// raw XML bytes from a remote node's CDI memory space and hands back
// a character stream with any trailing padding/null stripped.
type SourceReader struct {
	tp       transport.Transport
	cdiSpace int
	sf       singleflight.Group
}

// NewSourceReader constructs a SourceReader over tp. cdiSpace
// defaults to DefaultCDISpace when 0.
func NewSourceReader(tp transport.Transport, cdiSpace int) *SourceReader {
	if cdiSpace == 0 {
		cdiSpace = DefaultCDISpace
	}
	return &SourceReader{tp: tp, cdiSpace: cdiSpace}
}

// FetchCDI obtains the CDI character stream for node, invoking done
// exactly once. It returns immediately; done may run on a different
// goroutine. Concurrent FetchCDI calls for the same node share a
// single in-flight transport round trip, via
// golang.org/x/sync/singleflight.
func (s *SourceReader) FetchCDI(ctx context.Context, node transport.NodeID, done func(io.Reader, error)) {
	key := nodeKey(node)
	go func() {
		ch := s.sf.DoChan(key, func() (any, error) {
			type result struct {
				r   io.Reader
				err error
			}
			rc := make(chan result, 1)
			s.tp.ReadStream(ctx, node, s.cdiSpace, func(r io.Reader, err error) {
				rc <- result{r, err}
			})
			res := <-rc
			if res.err != nil {
				return nil, res.err
			}
			data, err := io.ReadAll(res.r)
			if err != nil {
				return nil, err
			}
			return data, nil
		})

		res := <-ch
		if res.Err != nil {
			if transport.IsTimeout(res.Err) {
				done(nil, errors.Wrap(res.Err, "fetching CDI"))
				return
			}
			done(nil, &transport.Error{Node: node, Space: s.cdiSpace, Op: "fetch CDI", Cause: res.Err})
			return
		}
		data := res.Val.([]byte)
		done(bytes.NewReader(stripTrailingPadding(data)), nil)
	}()
}

// stripTrailingPadding trims everything from the first 0x00 onward.
// Well-behaved transports already stop a stream read at the
// terminator, but a defensive trim here means a transport that
// hands back a fixed-size, zero-padded buffer still produces a clean
// character stream for the Parser.
func stripTrailingPadding(data []byte) []byte {
	if i := bytes.IndexByte(data, 0x00); i >= 0 {
		return data[:i]
	}
	return data
}

func nodeKey(node transport.NodeID) string {
	return strconv.FormatUint(uint64(node), 16)
}
