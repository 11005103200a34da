package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sparsekit/spla/spla"
	"github.com/sparsekit/spla/spla/algo"
	"github.com/sparsekit/spla/spla/mtx"
)

func newTriangleCountCmd() *cobra.Command {
	var blockSize int
	cmd := &cobra.Command{
		Use:   "triangle-count <matrix.mtx>",
		Short: "Count triangles in an undirected graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			parsed, err := mtx.Read(f, 1.0)
			if err != nil {
				return err
			}

			lib, err := spla.New(spla.Config{
				DeviceType:   spla.DeviceCPU,
				DeviceAmount: spla.DeviceAmountOne,
				BlockSize:    blockSize,
			})
			if err != nil {
				return err
			}
			defer lib.Close()

			adjacency, err := spla.MakeMatrix(lib, parsed.Rows, parsed.Cols, spla.TypeI32)
			if err != nil {
				return err
			}
			e := spla.NewExpression(lib)
			e.MakeDataWrite(adjacency.Tensor, parsed.Data)
			if err := lib.Submit(e); err != nil {
				return err
			}
			e.Wait()
			if e.State() == spla.StateAborted {
				return e.Error()
			}

			count, err := algo.TriangleCount(lib, adjacency)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
	cmd.Flags().IntVar(&blockSize, "block-size", 64, "block size for the library instance")
	return cmd
}
