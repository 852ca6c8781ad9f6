// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/pkg/errors"

	"github.com/ana-oj/judged/internal/judge"
)

// Receiver yields one Task at a time until the source is exhausted.
type Receiver interface {
	// Recv returns the next Task, or io.EOF once the source is
	// exhausted. It returns ctx.Err() without reading if ctx is
	// already cancelled when called.
	Recv(ctx context.Context) (judge.Task, error)
	Close() error
}

// Sender delivers one Report at a time to the sink.
type Sender interface {
	Send(ctx context.Context, r judge.Report) error
	Close() error
}

// ndjsonReceiver reads one JSON object per line from an underlying
// stream.
type ndjsonReceiver struct {
	rc  io.ReadCloser
	dec *json.Decoder
}

// NewNDJSONReceiver wraps rc as a Receiver that decodes one
// TaskMessage per line.
func NewNDJSONReceiver(rc io.ReadCloser) Receiver {
	return &ndjsonReceiver{rc: rc, dec: json.NewDecoder(bufio.NewReader(rc))}
}

func (r *ndjsonReceiver) Recv(ctx context.Context) (judge.Task, error) {
	if err := ctx.Err(); err != nil {
		return judge.Task{}, err
	}
	var msg TaskMessage
	if err := r.dec.Decode(&msg); err != nil {
		if err == io.EOF {
			return judge.Task{}, io.EOF
		}
		return judge.Task{}, errors.Wrap(err, "transport: decode task")
	}
	return msg.ToTask(), nil
}

func (r *ndjsonReceiver) Close() error { return r.rc.Close() }

// ndjsonSender writes one JSON object per line to an underlying
// stream.
type ndjsonSender struct {
	wc  io.WriteCloser
	w   *bufio.Writer
	enc *json.Encoder
}

// NewNDJSONSender wraps wc as a Sender that encodes one ReportMessage
// per line, flushing after every Send.
func NewNDJSONSender(wc io.WriteCloser) Sender {
	w := bufio.NewWriter(wc)
	return &ndjsonSender{wc: wc, w: w, enc: json.NewEncoder(w)}
}

func (s *ndjsonSender) Send(ctx context.Context, r judge.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.enc.Encode(FromReport(r)); err != nil {
		return errors.Wrap(err, "transport: encode report")
	}
	return errors.Wrap(s.w.Flush(), "transport: flush report")
}

func (s *ndjsonSender) Close() error { return s.wc.Close() }

// DialReceiver resolves an endpoint URL to a Receiver. Supported
// schemes: "file" (read from a path) and "tcp"/"unix" (dial and read
// NDJSON from the connection).
func DialReceiver(endpoint string) (Receiver, error) {
	rc, err := dialReadCloser(endpoint)
	if err != nil {
		return nil, err
	}
	return NewNDJSONReceiver(rc), nil
}

// DialSender resolves an endpoint URL to a Sender.
func DialSender(endpoint string) (Sender, error) {
	wc, err := dialWriteCloser(endpoint)
	if err != nil {
		return nil, err
	}
	return NewNDJSONSender(wc), nil
}

func dialReadCloser(endpoint string) (io.ReadCloser, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: parse endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "", "file":
		return os.Open(u.Path)
	case "tcp", "unix":
		conn, err := net.Dial(u.Scheme, dialAddr(u))
		if err != nil {
			return nil, errors.Wrapf(err, "transport: dial %s", endpoint)
		}
		return conn, nil
	default:
		return nil, errors.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
}

func dialWriteCloser(endpoint string) (io.WriteCloser, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: parse endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "", "file":
		return os.Create(u.Path)
	case "tcp", "unix":
		conn, err := net.Dial(u.Scheme, dialAddr(u))
		if err != nil {
			return nil, errors.Wrapf(err, "transport: dial %s", endpoint)
		}
		return conn, nil
	default:
		return nil, errors.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
}

func dialAddr(u *url.URL) string {
	if u.Scheme == "unix" {
		return u.Path
	}
	return u.Host
}
