// Package selector is the operator-facing part of the pipeline: the
// data-type prompt and the package pick list.
package selector

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ewhitman/davit/pkg/datatype"
	"github.com/ewhitman/davit/pkg/inventory/record"
	gklog "github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Selector struct {
	in  *bufio.Scanner
	out io.Writer
	log gklog.Logger
}

func New(in io.Reader, out io.Writer, log gklog.Logger) *Selector {
	return &Selector{
		in:  bufio.NewScanner(in),
		out: out,
		log: gklog.With(log, "component", "selector"),
	}
}

// PromptDataType asks the operator which team's data to pull. Empty input
// means the default (wcsd). Invalid input re-prompts.
func (s *Selector) PromptDataType() (string, error) {
	for {
		fmt.Fprintln(s.out, "Enter the number for the desired datatype:")
		fmt.Fprintln(s.out, "    [1] wcsd - default")
		fmt.Fprintln(s.out, "    [2] multibeam")
		fmt.Fprintln(s.out, "    [3] trackline")
		fmt.Fprint(s.out, "  >> ")

		line, err := s.readLine()
		if err != nil {
			return "", err
		}

		switch strings.TrimSpace(line) {
		case "", "1":
			return datatype.GroupWCSD, nil
		case "2":
			return datatype.GroupMultibeam, nil
		case "3":
			return datatype.GroupTrackline, nil
		default:
			fmt.Fprintf(s.out, "Input %s invalid. Try again.\n", strings.TrimSpace(line))
		}
	}
}

// Candidates keeps pending records in order while their cumulative size
// still fits the free-space budget.
func Candidates(recs []*record.Record, budget int64) []*record.Record {
	var total int64
	return lo.Filter(recs, func(rec *record.Record, _ int) bool {
		if total+rec.SizeBytes > budget {
			return false
		}
		total += rec.SizeBytes
		return true
	})
}

// PromptPackages lists the candidates and collects the operator's picks.
// Empty input selects nothing. Invalid choices re-prompt.
func (s *Selector) PromptPackages(recs []*record.Record) ([]*record.Record, error) {
	if len(recs) == 0 {
		fmt.Fprintln(s.out, "Query did not return any results")
		return nil, nil
	}

	fmt.Fprintln(s.out, "Available packages:")
	for i, rec := range recs {
		fmt.Fprintf(s.out, "%d. %s %s - %s\n", i+1, rec.CruiseID, rec.InstrumentName, rec.HumanSize())
	}

	for {
		fmt.Fprintln(s.out, "Choose what packages you want to download:")
		fmt.Fprintln(s.out, "\tEnter the numbers separated by commas  EX. 1,5,7")
		fmt.Fprintln(s.out, "\tor ranges of the packages using a dash EX. 1-5")
		fmt.Fprint(s.out, ">> ")

		line, err := s.readLine()
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(line) == "" {
			return nil, nil
		}

		choices, err := parseChoices(line, len(recs))
		if err != nil {
			fmt.Fprintf(s.out, "%s. Please try again.\n", err)
			continue
		}

		picked := lo.Map(choices, func(n int, _ int) *record.Record { return recs[n-1] })

		fmt.Fprintln(s.out, "\nYou selected:")
		var total int64
		for _, rec := range picked {
			fmt.Fprintf(s.out, "\t%s %s - %s\n", rec.CruiseID, rec.InstrumentName, rec.HumanSize())
			total += rec.SizeBytes
		}
		fmt.Fprintf(s.out, "\nTotal Requested Data Size: %s\n", humanize.IBytes(uint64(total)))

		return picked, nil
	}
}

func (s *Selector) readLine() (string, error) {
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", errors.Wrap(err, "selector read input")
		}
		return "", errors.New("selector input closed")
	}

	return s.in.Text(), nil
}

// parseChoices parses "1,5,7" and "1-5" style input into a sorted set of
// 1-based indexes, rejecting anything outside [1, max].
func parseChoices(input string, max int) ([]int, error) {
	set := make(map[int]struct{})

	for _, choice := range strings.Split(input, ",") {
		choice = strings.TrimSpace(choice)

		if strings.Contains(choice, "-") {
			bounds := strings.SplitN(choice, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, errors.Errorf("invalid choice %q", choice)
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, errors.Errorf("invalid choice %q", choice)
			}
			if start > end {
				return nil, errors.Errorf("invalid range %q", choice)
			}
			for n := start; n <= end; n++ {
				set[n] = struct{}{}
			}
			continue
		}

		n, err := strconv.Atoi(choice)
		if err != nil {
			return nil, errors.Errorf("invalid choice %q", choice)
		}
		set[n] = struct{}{}
	}

	choices := lo.Keys(set)
	for _, n := range choices {
		if n < 1 || n > max {
			return nil, errors.New("invalid choices detected")
		}
	}
	sort.Ints(choices)

	return choices, nil
}
