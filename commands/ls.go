package commands

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	fcolor "github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
	"github.com/spf13/afero"
)

const defaultWidth = 80

// Ls implements the UNIX ls command.
func Ls(env *Env) int {

	gid2name := func(gid int) string {
		switch gid {
		case 0:
			return "root"
		default:
			return fmt.Sprintf("%d", gid)
		}
	}

	width := env.Width
	if width <= 0 {
		width = defaultWidth
	}

	opts := getopt.New()
	listAll := opts.Bool('a', "include entries starting with ., including . and ..")
	longListing := opts.Bool('l', "use a long listing format")
	humanSize := opts.BoolLong("human-readable", 'h', "print human readable sizes")
	onePerLine := opts.Bool('1', "list one file per line")
	lineWidth := opts.IntLong("width", 'w', width, "set the column width, 0 is infinite")
	helpOpt := opts.BoolLong("help", '?', "show help and exit")

	var color ColorPrinter
	color.Init(opts, env)

	if err := opts.Getopt(env.Args, nil); err != nil || *helpOpt {
		w := env.Stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "Usage: ls [OPTION]... [FILE]...")
		fmt.Fprintln(w, "List information about the FILEs (the current directory by default).")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		opts.PrintOptions(w)
		return 1
	}

	// Initialize arguments
	directoriesToList := opts.Args()
	if len(directoriesToList) == 0 {
		directoriesToList = append(directoriesToList, ".")
	}
	sort.Strings(directoriesToList)

	showDirectoryNames := len(directoriesToList) > 1

	sizeFmt := func(bytes int64) string {
		return fmt.Sprintf("%d", bytes)
	}
	if *humanSize {
		sizeFmt = BytesToHuman
	}

	if *lineWidth == 0 {
		*lineWidth = math.MaxInt32
	}

	uid2name := UidResolver(env)

	exitCode := 0

	for i, directory := range directoriesToList {
		paths, err := readListing(env, directory, *listAll)
		if err != nil {
			fmt.Fprintf(env.Stderr, "ls: cannot access %q: %v\n", directory, unwrapPathError(err))
			exitCode = 1
			continue
		}

		if showDirectoryNames {
			if i > 0 {
				fmt.Fprintln(env.Stdout)
			}
			fmt.Fprintf(env.Stdout, "%s:\n", directory)
		}

		switch {
		case *longListing:
			var totalSize int64
			for _, p := range paths {
				totalSize += p.Size()
			}

			fmt.Fprintf(env.Stdout, "total %d\n", totalSize)
			tw := tabwriter.NewWriter(env.Stdout, 0, 0, 1, ' ', 0)
			for _, f := range paths {
				hardLinks := 1
				if f.IsDir() {
					hardLinks = 2
				}

				// Include time if current year.
				currentYear := time.Now().Year()
				modTime := f.ModTime().Format("Jan _2 2006")
				if f.ModTime().Year() >= currentYear {
					modTime = f.ModTime().Format("Jan _2 15:04")
				}

				uid, gid := getUIDGID(f)
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					f.Mode().String(),
					hardLinks,
					uid2name(uid),
					gid2name(gid),
					sizeFmt(f.Size()),
					modTime,
					color.Sprintf(Dircolor(f), "%s", f.Name()))
			}
			tw.Flush()

		case *onePerLine || !env.IsTTY:
			// Like the coreutils ls, pipes and files get one name per line.
			for _, f := range paths {
				fmt.Fprintln(env.Stdout, color.Sprintf(Dircolor(f), "%s", f.Name()))
			}

		default:
			colWidths := columnize(paths, *lineWidth)
			rows := len(paths) / len(colWidths)
			if len(paths)%len(colWidths) > 0 {
				rows++
			}

			w := env.Stdout
			for row := 0; row < rows; row++ {
				for col, width := range colWidths {
					index := (col * rows) + row
					if index >= len(paths) {
						break
					}
					// Add padding if there was a column before this.
					if col > 0 {
						fmt.Fprint(w, "  ")
					}
					entry := paths[index]
					name := entry.Name()
					fmt.Fprint(w, color.Sprintf(Dircolor(entry), "%s", name))
					// Pad for alignment unless it's the last column.
					if pad := width - len(name); pad > 0 && col < len(colWidths)-1 {
						fmt.Fprint(w, strings.Repeat(" ", pad))
					}
				}
				fmt.Fprintln(w)
			}
		}
	}

	return exitCode
}

// readListing returns the sorted entries to show for name. A file lists
// as itself.
func readListing(env *Env, name string, listAll bool) ([]os.FileInfo, error) {
	dir := env.Abs(name)
	stat, err := env.Fs.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return []os.FileInfo{renamedInfo{stat, name}}, nil
	}

	entries, err := afero.ReadDir(env.Fs, dir)
	if err != nil {
		return nil, err
	}

	var paths []os.FileInfo
	if listAll {
		paths = append(paths, renamedInfo{stat, "."})
		if parent, err := env.Fs.Stat(path.Dir(dir)); err == nil {
			paths = append(paths, renamedInfo{parent, ".."})
		}
	}
	for _, entry := range entries {
		if !listAll && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, entry)
	}

	sort.SliceStable(paths, func(i int, j int) bool {
		return paths[i].Name() < paths[j].Name()
	})
	return paths, nil
}

// renamedInfo reports a different name for a file, used for . and ..
type renamedInfo struct {
	os.FileInfo
	name string
}

func (r renamedInfo) Name() string { return r.name }

type LsColorTest struct {
	color *fcolor.Color
	test  func(fileInfo os.FileInfo) bool
}

// Color listing comes from: https://askubuntu.com/a/884513
var dircolors = []LsColorTest{
	// Directories are bold blue.
	{color: ColorBoldBlue, test: os.FileInfo.IsDir},
	// Symlinks are bold cyan.
	{color: ColorBoldCyan, test: func(fi os.FileInfo) bool {
		return fi.Mode()&fs.ModeSymlink > 0
	}},
	// Yellow with black background pipe, block device, char device.
	{color: fcolor.New(fcolor.FgYellow, fcolor.BgBlack, fcolor.Bold), test: func(fi os.FileInfo) bool {
		return fi.Mode()&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) > 0
	}},
	// Executables are bold green.
	{color: ColorBoldGreen, test: func(fi os.FileInfo) bool {
		return fi.Mode().Perm()&0111 > 0
	}},
	// Archives are bold red.
	{color: ColorBoldRed, test: func(fi os.FileInfo) bool {
		return archiveExtensions[strings.TrimPrefix(path.Ext(fi.Name()), ".")]
	}},
}

var archiveExtensions = map[string]bool{
	"tar": true,
	"tgz": true,
	"zip": true,
	"gz":  true,
	"bz2": true,
	"bz":  true,
	"tbz": true,
	"deb": true,
	"rpm": true,
	"jar": true,
	"war": true,
	"rar": true,
}

func Dircolor(fileInfo os.FileInfo) *fcolor.Color {
	for _, dc := range dircolors {
		if dc.test(fileInfo) {
			return dc.color
		}
	}

	// Anything else defaults to white.
	return fcolor.New(fcolor.FgHiWhite)
}

func columnize(paths []fs.FileInfo, screenWidth int) []int {
	numFiles := len(paths)
	if numFiles == 0 {
		return []int{0}
	}

	const colPadding = 2

	displayLengths := make([]int, len(paths))
	for i, p := range paths {
		displayLengths[i] = len(p.Name())
	}

	// Start with maximum number of columns and work down until all the data fits.
	// 3 is the minimum column width, 1 char filename + 2 padding.
	columns := screenWidth / (1 + colPadding)
	if columns > numFiles {
		columns = numFiles
	}
	if columns < 1 {
		columns = 1
	}
	var maximums []int // Holds maximum size of a name in the column.
	for ; columns >= 1; columns-- {
		rows := (numFiles + columns - 1) / columns
		// Fewer rows than columns would leave trailing columns empty.
		used := (numFiles + rows - 1) / rows
		maximums = make([]int, used)
		for i, nameLen := range displayLengths {
			if nameLen > maximums[i/rows] {
				maximums[i/rows] = nameLen
			}
		}

		total := (used - 1) * colPadding
		for _, m := range maximums {
			total += m
		}
		if total <= screenWidth {
			return maximums
		}
	}

	return maximums
}

func getUIDGID(fileInfo os.FileInfo) (uid, gid int) {
	if v, ok := fileInfo.Sys().(*syscall.Stat_t); ok {
		return int(v.Uid), int(v.Gid)
	}
	return 0, 0
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*fs.PathError); ok {
		return pe.Err
	}
	return err
}

var _ BuiltinFunc = Ls

func init() {
	mustAddBuiltin("ls", Ls)
}
