package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Configure sets the global logger level and output. With a file path the
// output is mirrored to the file as JSON lines; the terminal keeps the text
// formatter unless structured is set. The returned func closes the file.
func Configure(level string, filePath string, structured bool) (func() error, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(lvl)

	if structured || filePath != "" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if filePath == "" {
		logrus.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		logrus.WithError(err).Error("Could not create file for logging")
		return func() error { return nil }, nil
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, file))
	return file.Close, nil
}
