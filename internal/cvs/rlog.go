package cvs

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emilianohg/cvsbrowse/internal/models"
)

const (
	revisionSeparator = "----------------------------"
	fileSeparator     = "============================================================================="
)

var dateLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
}

// ParseRlog reads `cvs rlog` output and hands each file record to consume as
// soon as it is complete. repository is the CVSROOT repository path used to
// turn RCS file names into module-relative paths.
func ParseRlog(r io.Reader, repository string, consume func(models.LogInformation) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var block []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == fileSeparator {
			if err := emitBlock(block, repository, consume); err != nil {
				return err
			}
			block = block[:0]
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read rlog output: %w", err)
	}
	return emitBlock(block, repository, consume)
}

func emitBlock(lines []string, repository string, consume func(models.LogInformation) error) error {
	info, ok, err := parseBlock(lines, repository)
	if err != nil || !ok {
		return err
	}
	return consume(info)
}

func parseBlock(lines []string, repository string) (models.LogInformation, bool, error) {
	var info models.LogInformation
	i := 0

	// header
	for ; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "RCS file:"):
			info.RcsFile = strings.TrimSpace(strings.TrimPrefix(line, "RCS file:"))
			info.File = ModulePath(info.RcsFile, repository)
		case strings.HasPrefix(line, "head:"):
			info.Head = strings.TrimSpace(strings.TrimPrefix(line, "head:"))
		case line == "symbolic names:":
			for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
				i++
				name, rev, found := strings.Cut(strings.TrimSpace(lines[i]), ":")
				if found {
					info.SymbolicNames = append(info.SymbolicNames, models.SymbolicName{
						Name:     strings.TrimSpace(name),
						Revision: strings.TrimSpace(rev),
					})
				}
			}
		}
		if isRevisionStart(lines, i) {
			break
		}
	}

	if info.RcsFile == "" {
		return info, false, nil
	}

	for i < len(lines) {
		if !isRevisionStart(lines, i) {
			i++
			continue
		}
		rev, next, err := parseRevision(lines, i+1)
		if err != nil {
			return info, false, fmt.Errorf("%s: %w", info.File, err)
		}
		info.Revisions = append(info.Revisions, rev)
		i = next
	}
	return info, true, nil
}

// isRevisionStart reports whether lines[i] is a separator opening a revision entry.
// Log messages may contain the separator text themselves.
func isRevisionStart(lines []string, i int) bool {
	return i+1 < len(lines) && lines[i] == revisionSeparator && strings.HasPrefix(lines[i+1], "revision ")
}

func parseRevision(lines []string, i int) (models.Revision, int, error) {
	var rev models.Revision

	fields := strings.Fields(strings.TrimPrefix(lines[i], "revision "))
	if len(fields) == 0 {
		return rev, i, fmt.Errorf("empty revision line")
	}
	rev.Number = fields[0]
	i++

	if i < len(lines) && strings.HasPrefix(lines[i], "date:") {
		if err := parseDateLine(lines[i], &rev); err != nil {
			return rev, i, err
		}
		i++
	}
	if i < len(lines) && strings.HasPrefix(lines[i], "branches:") {
		rev.Branches = parseBranches(strings.TrimPrefix(lines[i], "branches:"))
		i++
	}

	var message []string
	for i < len(lines) && !isRevisionStart(lines, i) {
		message = append(message, lines[i])
		i++
	}
	for len(message) > 0 && message[len(message)-1] == "" {
		message = message[:len(message)-1]
	}
	rev.Message = strings.Join(message, "\n")
	return rev, i, nil
}

func parseDateLine(line string, rev *models.Revision) error {
	for _, part := range strings.Split(line, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "date":
			t, err := parseDate(value)
			if err != nil {
				return err
			}
			rev.Date = t
		case "author":
			rev.Author = value
		case "state":
			rev.State = value
		case "lines":
			rev.Lines = value
		case "commitid":
			rev.CommitID = value
		}
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized rlog date %q", value)
}

func parseBranches(value string) string {
	var branches []string
	for _, b := range strings.Split(value, ";") {
		if b = strings.TrimSpace(b); b != "" {
			branches = append(branches, b)
		}
	}
	return strings.Join(branches, ";")
}

// ModulePath converts an RCS file name into a path relative to the repository
// root: the repository prefix, Attic directories and the ",v" suffix are removed.
func ModulePath(rcsFile, repository string) string {
	p := strings.TrimSuffix(strings.TrimSpace(rcsFile), ",v")
	repository = strings.TrimSuffix(repository, "/")
	if repository != "" && strings.HasPrefix(p, repository+"/") {
		p = strings.TrimPrefix(p, repository+"/")
	}
	p = strings.ReplaceAll(p, "/Attic/", "/")
	return strings.TrimPrefix(p, "Attic/")
}
