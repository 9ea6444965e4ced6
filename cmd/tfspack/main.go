// Command tfspack packs a host directory into a fresh TFS image: one root
// directory entry per regular file found, named after the file with its
// first dot-extension stripped.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/tfs-project/tinyfs/blockdev"
	tfserr "github.com/tfs-project/tinyfs/errors"
	"github.com/tfs-project/tinyfs/layout"
	"github.com/tfs-project/tinyfs/tfs"
)

const (
	imageBlocks       = 32768 // 32768 * 512 bytes = 16 MiB
	inodeBitmapBlocks = 1
	imageFileName     = "tfs.img"

	// maxFileSize is the largest file this format's index tree can address
	// (direct + indirect1 + indirect2).
	maxFileSize = layout.MaxFileBlocks * blockdev.BlockSize
)

func main() {
	app := cli.App{
		Usage: "Pack a directory of files into a TFS image",
		Commands: []*cli.Command{
			{
				Name:   "pack",
				Usage:  "Create tfs.img in the target directory from the files in the source directory",
				Action: packImage,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Required: true, Usage: "source directory of files to pack"},
					&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Required: true, Usage: "target directory to write tfs.img into"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("tfspack: %s", err.Error())
	}
}

func packImage(context *cli.Context) error {
	sourceDir := context.String("source")
	targetPath := filepath.Join(context.String("target"), imageFileName)

	image, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer image.Close()

	if err := image.Truncate(imageBlocks * blockdev.BlockSize); err != nil {
		return fmt.Errorf("sizing image file: %w", err)
	}

	dev := blockdev.NewFileDevice(image)
	fs := tfs.Create(dev, imageBlocks, inodeBitmapBlocks)
	root := fs.RootInode()

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("reading source directory: %w", err)
	}

	var result *multierror.Error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := packOne(root, sourceDir, entry.Name()); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", entry.Name(), err))
		}
	}

	fs.SyncAll()
	return result.ErrorOrNil()
}

func packOne(root *tfs.Inode, sourceDir, hostName string) error {
	contents, err := os.ReadFile(filepath.Join(sourceDir, hostName))
	if err != nil {
		return fmt.Errorf("reading host file: %w", err)
	}
	if len(contents) > maxFileSize {
		return tfserr.ErrFileTooLarge.WithMessage(fmt.Sprintf("%d bytes exceeds the %d-byte limit", len(contents), maxFileSize))
	}

	inode, err := root.Create(stripFirstExtension(hostName))
	if err != nil {
		return fmt.Errorf("creating entry: %w", err)
	}

	if _, err := inode.WriteAt(0, contents); err != nil {
		return fmt.Errorf("writing contents: %w", err)
	}
	return nil
}

// stripFirstExtension drops the first "." and everything after it, so
// "archive.tar.gz" packs in as "archive", not "archive.tar".
func stripFirstExtension(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
