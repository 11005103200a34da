package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sparsekit/spla/spla"
	"github.com/sparsekit/spla/spla/algo"
	"github.com/sparsekit/spla/spla/mtx"
)

func newBFSCmd() *cobra.Command {
	var (
		blockSize int
		source    int
	)
	cmd := &cobra.Command{
		Use:   "bfs <matrix.mtx>",
		Short: "Breadth-first search from a source vertex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			parsed, err := mtx.Read(f, true)
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

			adjacency, err := spla.MakeMatrix(lib, parsed.Rows, parsed.Cols, spla.TypeBool)
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

			levels, depth, err := algo.BFS(lib, adjacency, source)
			if err != nil {
				return err
			}
			for v, l := range levels {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d\n", v, l)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "depth\t%d\n", depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&blockSize, "block-size", 64, "block size for the library instance")
	cmd.Flags().IntVar(&source, "source", 0, "source vertex")
	return cmd
}
