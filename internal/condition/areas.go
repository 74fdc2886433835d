package condition

import (
	_ "embed"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed data/therapeutic_areas.yaml
var areasYAML []byte

type areaFile struct {
	Areas map[string][]string `yaml:"areas"`
}

var (
	areaOnce   sync.Once
	areaByName map[string]string
)

// TherapeuticArea returns the therapeutic area for a standard disease name,
// or "" when the disease is not in the cross-reference table.
func TherapeuticArea(standardName string) string {
	areaOnce.Do(loadAreas)
	return areaByName[standardName]
}

func loadAreas() {
	areaByName = make(map[string]string)
	var f areaFile
	if err := yaml.Unmarshal(areasYAML, &f); err != nil {
		zap.L().Error("condition: parse therapeutic area table", zap.Error(err))
		return
	}
	for area, diseases := range f.Areas {
		for _, d := range diseases {
			areaByName[d] = area
		}
	}
}
