package chiaconfig

import "path/filepath"

// CertificateBundle holds paths only; nothing is read until a TLS handshake needs it.
type CertificateBundle struct {
	CertPath string
	KeyPath  string
	CAPath   string
}

// ResolveCertificates follows the private_<service> layout under <root>/config/ssl.
func ResolveCertificates(service, root string) CertificateBundle {
	base := filepath.Join(root, "config", "ssl")
	return CertificateBundle{
		CertPath: filepath.Join(base, service, "private_"+service+".crt"),
		KeyPath:  filepath.Join(base, service, "private_"+service+".key"),
		CAPath:   filepath.Join(base, "ca", "private_ca.crt"),
	}
}
