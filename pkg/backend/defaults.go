package backend

import (
	"net/http"

	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/toolrun"
)

// NewDefaultRegistry wires every known method with its production
// adapter. The ENA client serves both the file report lookups of the
// ENA methods and the SDL placement lookups of the cloud-copy methods.
// A nil client, runner, or httpClient gets the respective default.
func NewDefaultRegistry(client *ena.Client, runner toolrun.Runner, httpClient *http.Client) (*Registry, error) {
	if client == nil {
		client = ena.New(ena.Config{})
	}
	if runner == nil {
		runner = toolrun.NewExecRunner()
	}

	reg := NewRegistry()
	adapters := []Adapter{
		NewENAAscp(client, runner),
		NewENAFTP(client, httpClient),
		NewPrefetch(runner),
		NewAWSHTTP("", httpClient),
		NewAWSCP(client, nil),
		NewGCPCP(client, runner),
	}
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
