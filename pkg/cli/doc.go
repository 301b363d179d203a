/*
Package cli provides helpers shared by the gate command: typed errors that
map to exit codes, output formatting and signal handling.

Output Formatting:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
*/
package cli
