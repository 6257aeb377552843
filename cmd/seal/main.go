package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"

	"github.com/t7a/sealbase"
	"github.com/t7a/sealbase/prodfile"
)

func init() {
	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number`. e.g. `/internal/app/api.go:25`
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d", strings.TrimPrefix(f.File, p), f.Line)
	}
}

type Opts struct {
	Verify   bool
	Seal     bool
	Id       bool
	State    bool
	Links    bool
	Watch    bool
	File     string
	Dir      string
	WatchDir string `docopt:"<watchdir>"`
	Level    string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (rc int) {

	usage := `sealbase

Usage:
  seal verify [--level=<level>] <file>
  seal seal <file>
  seal id <file>
  seal state <file>
  seal links [--dir=<dir>] <file>
  seal watch <watchdir>

Options:
  -h --help          Show this screen.
  --version          Show version.
  --level=<level>    Verification level: full, fast, dataset:<path>,
                     or chunk:<path>@<ordinal> [default: full]
  --dir=<dir>        Directory holding referenced products [default: .]
`
	parser := &docopt.Parser{OptionsFirst: false}
	o, _ := parser.ParseArgs(usage, args, "0.1")
	var opts Opts
	err := o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debug(opts)

	switch true {
	case opts.Verify:
		return verify(opts.File, opts.Level)
	case opts.Seal:
		seal, err := sealFile(opts.File)
		if err != nil {
			log.Error(err)
			return 2
		}
		fmt.Println(seal)
	case opts.Id:
		id, inputs, err := identity(opts.File)
		if err != nil {
			log.Error(err)
			return 2
		}
		fmt.Println(id)
		fmt.Println(strings.Join(inputs, ","))
	case opts.State:
		state, err := state(opts.File)
		if err != nil {
			log.Error(err)
			return 2
		}
		fmt.Println(state)
	case opts.Links:
		return links(opts.File, opts.Dir)
	case opts.Watch:
		err := watch(opts.WatchDir)
		if err != nil {
			log.Error(err)
			return 2
		}
	}
	return 0
}

// verify returns 0 verified, 1 mismatch, 2 unresolved or missing
// required data.
func verify(file, level string) (rc int) {
	p, err := prodfile.Open(file)
	if err != nil {
		log.Error(err)
		return 2
	}
	switch {
	case level == "" || level == "full":
		err = sealbase.Verify(p, sealbase.Full)
	case level == "fast":
		err = sealbase.Verify(p, sealbase.Fast)
	case strings.HasPrefix(level, "dataset:"):
		err = sealbase.VerifyDataset(p, strings.TrimPrefix(level, "dataset:"))
	case strings.HasPrefix(level, "chunk:"):
		spec := strings.TrimPrefix(level, "chunk:")
		i := strings.LastIndexByte(spec, '@')
		if i < 0 {
			log.Errorf("chunk level wants chunk:<path>@<ordinal>, got %q", level)
			return 22
		}
		var ordinal int
		ordinal, err = strconv.Atoi(spec[i+1:])
		if err != nil {
			log.Error(err)
			return 22
		}
		err = sealbase.VerifyChunk(p, spec[:i], ordinal)
	default:
		log.Errorf("unknown level: %q", level)
		return 22
	}
	if err == nil {
		fmt.Println("ok")
		return 0
	}
	log.Error(err)
	switch err.(type) {
	case *sealbase.MismatchError:
		return 1
	default:
		// not sealed, no chunk table, missing dataset: the data
		// needed to verify isn't there
		return 2
	}
}

// sealFile runs the hashing phase over a Building (or previously
// sealed) file.  Safe after a crash between data flush and seal: the
// pass is idempotent.
func sealFile(file string) (seal string, err error) {
	p, err := prodfile.Open(file)
	if err != nil {
		return
	}
	return p.Seal(sealbase.DefaultSchemes())
}

func identity(file string) (id string, inputs []string, err error) {
	p, err := prodfile.Open(file)
	if err != nil {
		return
	}
	idVal, err := p.Attr(p.Root(), sealbase.AttrID)
	if err != nil {
		err = fmt.Errorf("%s has no identity; still building?", file)
		return
	}
	id = idVal.Str
	inputsVal, err := p.Attr(p.Root(), sealbase.AttrIDInputs)
	if err != nil {
		return
	}
	inputs = inputsVal.Strs
	return
}

func state(file string) (state string, err error) {
	p, err := prodfile.Open(file)
	if err != nil {
		return
	}
	s, err := p.State()
	if err != nil {
		return
	}
	state = s.String()
	return
}

// links checks every provenance link reachable from file, resolving
// identities against the product files in dir.  Returns 0 if all
// links are ok, 1 if any is stale, 2 if any is unresolved.
func links(file, dir string) (rc int) {
	p, err := prodfile.Open(file)
	if err != nil {
		log.Error(err)
		return 2
	}
	own, err := sealbase.LinksFromStore(p)
	if err != nil {
		log.Error(err)
		return 2
	}
	idVal, err := p.Attr(p.Root(), sealbase.AttrID)
	if err != nil {
		log.Errorf("%s has no identity; still building?", file)
		return 2
	}

	index, err := indexDir(dir)
	if err != nil {
		log.Error(err)
		return 2
	}
	resolve := func(identity string) (contentHash string, err error) {
		entry, ok := index[identity]
		if !ok {
			return "", &sealbase.UnresolvedError{Identity: identity}
		}
		return entry.contentHash, nil
	}
	list := func(identity string) (links []sealbase.SourceLink, err error) {
		if identity == idVal.Str {
			return own, nil
		}
		entry, ok := index[identity]
		if !ok {
			return nil, &sealbase.UnresolvedError{Identity: identity}
		}
		return entry.links, nil
	}

	reports, err := sealbase.Traverse(idVal.Str, list, resolve)
	if err != nil {
		log.Error(err)
		return 2
	}
	stale, unresolved := false, false
	for _, r := range reports {
		fmt.Printf("%s\t%s\t%s\n", r.Role, r.Identity, r.Status)
		switch r.Status {
		case sealbase.LinkStale:
			stale = true
		case sealbase.LinkUnresolved:
			unresolved = true
		}
	}
	if stale {
		return 1
	}
	if unresolved {
		return 2
	}
	return 0
}

type indexEntry struct {
	contentHash string
	links       []sealbase.SourceLink
}

// indexDir maps identity to current content hash and recorded links
// for every product file in dir.
func indexDir(dir string) (index map[string]indexEntry, err error) {
	index = make(map[string]indexEntry)
	matches, err := filepath.Glob(filepath.Join(dir, "*.prod"))
	if err != nil {
		return
	}
	for _, path := range matches {
		p, err := prodfile.Open(path)
		if err != nil {
			log.Debugf("skipping %s: %v", path, err)
			continue
		}
		idVal, err := p.Attr(p.Root(), sealbase.AttrID)
		if err != nil {
			continue
		}
		sealVal, err := p.Attr(p.Root(), sealbase.AttrContentHash)
		if err != nil {
			continue
		}
		links, err := sealbase.LinksFromStore(p)
		if err != nil {
			return nil, err
		}
		index[idVal.Str] = indexEntry{contentHash: sealVal.Str, links: links}
	}
	return
}

// watch fast-verifies product files in dir as they appear or change.
func watch(dir string) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer watcher.Close()
	err = watcher.Add(dir)
	if err != nil {
		return
	}
	log.Infof("watching %s", dir)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".prod" {
				continue
			}
			p, err := prodfile.Open(event.Name)
			if err != nil {
				log.Warnf("%s: %v", event.Name, err)
				continue
			}
			err = sealbase.Verify(p, sealbase.Fast)
			if err != nil {
				log.Errorf("%s: %v", event.Name, err)
				continue
			}
			log.Infof("%s: ok", event.Name)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(werr)
		}
	}
}
