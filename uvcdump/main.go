// Copyright 2026 The Cacophony Project
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

// uvcdump summarises a stream recording the way a UVC host would see it.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	uvcgrab "github.com/TheCacophonyProject/go-uvcgrab"
)

func main() {
	err := runMain(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runMain(argv []string, out io.Writer) error {
	flags := flag.NewFlagSet("uvcdump", flag.ContinueOnError)
	verbose := flags.Bool("v", false, "print every frame")
	extract := flags.Int("frame", -1, "frame number to extract")
	extractTo := flags.String("out", "", "file to write the extracted frame to")
	if err := flags.Parse(argv); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: uvcdump [-v] [-frame n -out file] <recording>")
	}

	file, err := os.Open(flags.Arg(0))
	if err != nil {
		return err
	}
	defer file.Close()
	r, err := uvcgrab.NewReader(file)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Version:     ", r.Version())
	fmt.Fprintln(out, "Timestamp:   ", r.Timestamp())
	fmt.Fprintln(out, "Frame size:  ", r.FrameSize())
	fmt.Fprintln(out, "Max payload: ", r.MaxPayloadSize())
	fmt.Fprintln(out, "Header size: ", r.Header().HeaderSize)

	s, err := summarise(r, out, *verbose, *extract, *extractTo)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Frames:      ", s.frames)
	fmt.Fprintln(out, "Incomplete:  ", s.incomplete)
	fmt.Fprintln(out, "Bad chunking:", s.badChunks)
	fmt.Fprintln(out, "Payloads:    ", s.payloads)
	return nil
}

type summary struct {
	frames     int
	incomplete int
	badChunks  int
	payloads   int
}

func summarise(r *uvcgrab.Reader, out io.Writer, verbose bool, extract int, extractTo string) (summary, error) {
	var s summary
	want := uvcgrab.ChunkSizes(r.FrameSize(), r.MaxPayloadSize())
	for {
		f, err := r.ReadFrame()
		if err == io.EOF {
			break
		} else if err != nil {
			return s, err
		}
		complete := f.Complete(r.FrameSize())
		if !complete {
			s.incomplete++
		}
		if complete && !slices.Equal(f.Chunks, want) {
			s.badChunks++
		}
		s.payloads += len(f.Chunks)
		if verbose {
			fid := 0
			if f.FID {
				fid = 1
			}
			fmt.Fprintf(out, "frame %d: fid=%d bytes=%d chunks=%d complete=%t\n", s.frames, fid, len(f.Data), len(f.Chunks), complete)
		}
		if s.frames == extract {
			if extractTo == "" {
				return s, fmt.Errorf("-frame needs -out")
			}
			if err := os.WriteFile(extractTo, f.Data, 0644); err != nil {
				return s, err
			}
		}
		s.frames++
	}
	return s, nil
}
