package main

import (
	"fmt"
	"log"
	"os"

	"github.com/carvefs/carve/disks"
	"github.com/carvefs/carve/file_systems/common/diskimage"
	"github.com/carvefs/carve/file_systems/mapfs"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "carve",
		Usage: "Manage single-file inode file system images",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "profile",
						Usage: "geometry profile to format with (see `carve profiles`)",
						Value: "standard",
					},
					&cli.UintFlag{
						Name:  "blocks",
						Usage: "override the profile's total block count",
					},
					&cli.UintFlag{
						Name:  "block-size",
						Usage: "override the profile's block size, in bytes",
					},
					&cli.UintFlag{
						Name:  "inodes",
						Usage: "override the profile's inode count",
					},
				},
			},
			{
				Name:      "profiles",
				Usage:     "List the built-in geometry profiles",
				Action:    listProfiles,
				ArgsUsage: " ",
			},
			{
				Name:      "ls",
				Usage:     "List the image's whole tree",
				Action:    listTree,
				ArgsUsage: "IMAGE",
			},
			{
				Name:      "stat",
				Usage:     "Show usage statistics for an image",
				Action:    statImage,
				ArgsUsage: "IMAGE",
			},
			{
				Name:      "add",
				Usage:     "Add a file to the image, creating directories along the path",
				Action:    addFile,
				ArgsUsage: "IMAGE PATH [LOCAL_FILE]",
			},
			{
				Name:      "extract",
				Usage:     "Extract a file from the image",
				Action:    extractFile,
				ArgsUsage: "IMAGE PATH [LOCAL_FILE]",
			},
			{
				Name:      "rm",
				Usage:     "Remove an entry and prune directories it leaves empty",
				Action:    removeEntry,
				ArgsUsage: "IMAGE PATH",
			},
			{
				Name:      "debug",
				Usage:     "Walk a path, printing each directory level visited",
				Action:    debugWalk,
				ArgsUsage: "IMAGE PATH",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func requireArgs(context *cli.Context, minimum int) error {
	if context.NArg() < minimum {
		return cli.Exit(
			fmt.Sprintf("expected at least %d argument(s); run with --help for usage", minimum), 2)
	}
	return nil
}

// openImage loads an existing formatted image file and returns a ready
// driver. The caller must close the file after flushing the driver.
func openImage(path string) (*os.File, *mapfs.Driver, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	geom, err := mapfs.ProbeGeometry(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	image, err := diskimage.FromStream(file, uint(geom.BlockSize), uint(geom.TotalBlocks))
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	driver := mapfs.NewDriver(image)
	if err := driver.Load(); err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, driver, nil
}

func formatImage(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	profile, err := disks.GetProfile(context.String("profile"))
	if err != nil {
		return err
	}

	geom := profile.Geometry()
	if context.IsSet("blocks") {
		geom.TotalBlocks = uint32(context.Uint("blocks"))
	}
	if context.IsSet("block-size") {
		geom.BlockSize = uint32(context.Uint("block-size"))
	}
	if context.IsSet("inodes") {
		geom.TotalInodes = uint32(context.Uint("inodes"))
	}
	if err := geom.Validate(); err != nil {
		return err
	}

	file, err := os.OpenFile(context.Args().Get(0), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := file.Truncate(geom.TotalSizeBytes()); err != nil {
		return err
	}

	image, err := diskimage.FromStream(file, uint(geom.BlockSize), uint(geom.TotalBlocks))
	if err != nil {
		return err
	}

	driver := mapfs.NewDriver(image)
	if err := driver.Format(geom); err != nil {
		return err
	}
	return driver.Flush()
}

func listProfiles(context *cli.Context) error {
	profiles, err := disks.ListProfiles()
	if err != nil {
		return err
	}

	for _, profile := range profiles {
		fmt.Printf(
			"%-10s %6d blocks x %4d B, %4d inodes (%d bytes)  %s\n",
			profile.Slug,
			profile.TotalBlocks,
			profile.BlockSize,
			profile.TotalInodes,
			profile.TotalSizeBytes(),
			profile.Notes,
		)
	}
	return nil
}

func listTree(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	file, driver, err := openImage(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer file.Close()

	return driver.List(os.Stdout)
}

func statImage(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	file, driver, err := openImage(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer file.Close()

	stat := driver.FSStat()
	fmt.Printf("block size:    %d\n", stat.BlockSize)
	fmt.Printf("total blocks:  %d\n", stat.TotalBlocks)
	fmt.Printf("free blocks:   %d\n", stat.BlocksFree)
	fmt.Printf("total inodes:  %d\n", stat.TotalInodes)
	fmt.Printf("free inodes:   %d\n", stat.InodesFree)
	fmt.Printf("max name:      %d\n", stat.MaxNameLength)
	return nil
}

func addFile(context *cli.Context) error {
	if err := requireArgs(context, 2); err != nil {
		return err
	}

	source := os.Stdin
	if context.NArg() > 2 {
		local, err := os.Open(context.Args().Get(2))
		if err != nil {
			return err
		}
		defer local.Close()
		source = local
	}

	file, driver, err := openImage(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer file.Close()

	if err := driver.AddFile(context.Args().Get(1), source); err != nil {
		return err
	}
	return driver.Flush()
}

func extractFile(context *cli.Context) error {
	if err := requireArgs(context, 2); err != nil {
		return err
	}

	sink := os.Stdout
	if context.NArg() > 2 {
		local, err := os.Create(context.Args().Get(2))
		if err != nil {
			return err
		}
		defer local.Close()
		sink = local
	}

	file, driver, err := openImage(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer file.Close()

	return driver.Extract(context.Args().Get(1), sink)
}

func removeEntry(context *cli.Context) error {
	if err := requireArgs(context, 2); err != nil {
		return err
	}

	file, driver, err := openImage(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer file.Close()

	if err := driver.Remove(context.Args().Get(1)); err != nil {
		return err
	}
	return driver.Flush()
}

func debugWalk(context *cli.Context) error {
	if err := requireArgs(context, 2); err != nil {
		return err
	}

	file, driver, err := openImage(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer file.Close()

	return driver.DebugWalk(context.Args().Get(1), os.Stdout)
}
