package cli

import (
	"encoding/json"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

func outputData(data any, format string, location string) error {
	var bd []byte
	var err error
	switch format {
	case "json":
		bd, err = json.Marshal(data)
		if err != nil {
			return err
		}
		bd = append(bd, '\n')
	case "yaml":
		bd, err = yaml.Marshal(data)
		if err != nil {
			return err
		}
	default:
		return errors.New("invalid output format")
	}
	if location == "-" || location == "" {
		_, err = os.Stdout.Write(bd)
		return err
	}
	return os.WriteFile(location, bd, 0644)
}
