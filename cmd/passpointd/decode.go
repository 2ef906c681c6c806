package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vpbank/passpointd/anqp/decoder"
	jsonformat "github.com/vpbank/passpointd/format/json"
	"github.com/vpbank/passpointd/models"
)

func newDecodeCmd(v *viper.Viper) *cobra.Command {
	var element string
	var compact bool

	cmd := &cobra.Command{
		Use:   "decode --element <name|id> <hex>",
		Short: "Decode one raw ANQP element body",
		Long: `Decode one raw ANQP element body and print the resulting response as JSON.

The element is given by name (VenueName, DomainName, HSWANMetrics, ...) or by
numeric id (268, 0x10c, 4). The body is hex, optionally separated by spaces
or colons.

Examples:
  passpointd decode --element DomainName 0b6578616d706c652e636f6d
  passpointd decode --element 262 0e`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFrom(cmd, v)
			if err != nil {
				return err
			}

			t, err := parseElement(element)
			if err != nil {
				return err
			}
			body, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}

			resp := models.AnqpResponse{}
			if err := decoder.DecodeElement(t, body, &resp); err != nil {
				return err
			}
			logger.Debug("decode: element decoded", "element", t.String(), "bytes", len(body))

			out, err := jsonformat.New(jsonformat.Config{PrettyPrint: !compact}, logger).FormatResponse(&resp)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVarP(&element, "element", "e", "", "element name or id")
	cmd.Flags().BoolVar(&compact, "compact", false, "print single-line JSON")
	_ = cmd.MarkFlagRequired("element")
	return cmd
}

// parseElement accepts an element name or a decimal/hex id.
func parseElement(s string) (models.ElementType, error) {
	if t, ok := models.ParseElementType(s); ok {
		return t, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown element %q", s)
	}
	t := models.ElementType(n)
	if !decoder.Supported(t) {
		return 0, fmt.Errorf("unsupported element %d", n)
	}
	return t, nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex body: %w", err)
	}
	return b, nil
}
