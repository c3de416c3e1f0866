// Command icapcli submits a single file to an ICAP service and prints the
// resulting verdict, mirroring the shape of the client library's public API.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	icapclient "github.com/kobergj/icap-client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	host        string
	port        int
	serviceName string
	secure      bool
	mode        string
	preview     int
	compare     bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "icapcli",
	Short: "icapcli submits files to an ICAP service and reports the verdict",
	Long: `icapcli is a command-line client for REQMOD/RESPMOD/FILEMOD
adaptation services. It negotiates OPTIONS, submits a file as the
encapsulated resource, and prints whether the service passed, blocked,
or rewrote it.`,
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Submit a file for adaptation and print the verdict",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Negotiate OPTIONS with the remote service and print its capabilities",
	RunE:  runOptions,
}

// loadedConfig is resolved once, in initConfig, from built-in defaults, an
// optional YAML file, and ICAP_*-prefixed environment variables. Flags that
// were actually passed on the command line override it field by field in
// buildClient/runValidate.
var loadedConfig icapclient.Config

func initConfig() {
	cfg, err := icapclient.LoadConfig(viper.GetViper(), cfgFile)
	cobra.CheckErr(err)
	loadedConfig = cfg

	if verbose {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(os.Stderr, "using config file:", used)
		}
	}

	if level, err := logrus.ParseLevel(loadedConfig.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func buildClient(cmd *cobra.Command) *icapclient.Client {
	svc := loadedConfig.ServiceInformation()
	if cmd.Flags().Changed("host") {
		svc.Host = host
	}
	if cmd.Flags().Changed("port") {
		svc.Port = port
	}
	if cmd.Flags().Changed("service") {
		svc.ServiceName = serviceName
	}
	if cmd.Flags().Changed("secure") {
		svc.Secure = secure
	}

	compareIdentical := loadedConfig.CompareIdentical
	if cmd.Flags().Changed("compare-identical") {
		compareIdentical = compare
	}

	return icapclient.NewClient(svc, nil).SetCompareVerifyIdenticalContent(compareIdentical)
}

func resourceFromPath(path string) (icapclient.Resource, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return icapclient.Resource{}, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return icapclient.Resource{}, nil, err
	}
	return icapclient.Resource{
		Name:   filepath.Base(path),
		Length: fi.Size(),
		Body:   f,
	}, f.Close, nil
}

func runOptions(cmd *cobra.Command, args []string) error {
	client := buildClient(cmd)
	cfg, err := client.Options(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("preview=%d allow204=%v methods=%v\n", cfg.PreviewSize, cfg.Allow204, cfg.Methods)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, ok := parseModeFlag(mode)
	if !ok {
		return fmt.Errorf("icapcli: unknown mode %q (want reqmod, respmod, or filemod)", mode)
	}

	resource, closeFile, err := resourceFromPath(args[0])
	if err != nil {
		return err
	}
	defer closeFile()

	reqInfo := loadedConfig.RequestInformation()
	if cmd.Flags().Changed("preview") {
		if preview > 0 {
			reqInfo.PreviewOverride = &preview
		} else {
			reqInfo.PreviewOverride = nil
		}
	}

	client := buildClient(cmd)
	headers, err := client.Validate(context.Background(), m, &reqInfo, resource)
	if err != nil {
		if blocked, ok := err.(*icapclient.ContentBlockedError); ok {
			fmt.Printf("blocked: %s (%s)\n", blocked.Message, blocked.Explanation)
			os.Exit(1)
		}
		return err
	}

	fmt.Printf("clean: status=%d\n", headers.Status)
	return nil
}

func parseModeFlag(s string) (icapclient.Mode, bool) {
	switch s {
	case "reqmod":
		return icapclient.REQMOD, true
	case "respmod":
		return icapclient.RESPMOD, true
	case "filemod":
		return icapclient.FILEMOD, true
	default:
		return 0, false
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.icap-client.yaml)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "ICAP service host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 1344, "ICAP service port")
	rootCmd.PersistentFlags().StringVar(&serviceName, "service", "respmod", "ICAP service name")
	rootCmd.PersistentFlags().BoolVar(&secure, "secure", false, "dial with TLS (icaps://)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	validateCmd.Flags().StringVar(&mode, "mode", "respmod", "adaptation mode: reqmod, respmod, or filemod")
	validateCmd.Flags().IntVar(&preview, "preview", 0, "override the negotiated preview size (0 uses the server's default)")
	validateCmd.Flags().BoolVar(&compare, "compare-identical", false, "verify the response body is byte-identical to the submission when no rewrite is expected")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(optionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
