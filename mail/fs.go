package mail

import (
	"github.com/rykov/lure/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"path/filepath"
)

// missingFiles lists the files a send needs but can not read: the target
// file in file mode and the local images of the message template
func missingFiles(fs afero.Fs, m config.MailerConfig) []string {
	var missing []string
	if m.TargetType == "file" && m.TargetFile != "" && !isReadable(fs, m.TargetFile) {
		missing = append(missing, m.TargetFile)
	}

	raw, err := afero.ReadFile(fs, m.HTMLFile)
	if err != nil {
		// Reported by the settings check
		return missing
	}
	images, err := localImages(filepath.Dir(m.HTMLFile), string(raw))
	if err != nil {
		log.WithError(err).WithField("file", m.HTMLFile).Warn("could not parse the message template")
		return missing
	}
	for _, p := range images {
		if !isReadable(fs, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func isReadable(fs afero.Fs, path string) bool {
	return (&config.Fs{Fs: fs}).IsReadable(path)
}
