package handlers

import (
	"strings"

	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/router"
)

// ciFamilies lists the artifact families that carry a test-lifecycle topic
// of the shape org.centos.prod.ci.<family>.test.{queued,running,complete,error}.
var ciFamilies = []struct {
	segment string
	typ     model.ArtifactType
}{
	{"koji-build", model.TypeKojiBuild},
	{"brew-build", model.TypeBrewBuild},
	{"redhat-module", model.TypeRedHatModule},
	{"redhat-container-image", model.TypeRedHatContainerImg},
}

// tagTopicType maps a buildsys.tag topic to the artifact type whose hub
// produced it: fedoraproject publishes to the community koji-build hub,
// centos publishes to the internal brew-build hub.
func tagTopicType(topic string) model.ArtifactType {
	if strings.HasPrefix(topic, "org.fedoraproject.") {
		return model.TypeKojiBuild
	}
	return model.TypeBrewBuild
}

// Register wires every handler into r, most-specific pattern first, per the
// bridge's handler-category list.
func Register(r *router.Router, deps Deps) {
	r.Register(`^org\.(centos|fedoraproject)\.prod\.buildsys\.tag$`, &BuildTagHandler{
		Deps:         deps,
		TypeForTopic: tagTopicType,
	})

	r.Register(`^org\.(centos|fedoraproject)\.prod\.buildsys\.module\.tag$`, &ModuleTagHandler{Deps: deps})

	for _, family := range ciFamilies {
		r.Register(`^org\.centos\.prod\.ci\.`+family.segment+`\.test\.(complete|queued|running|error)$`, &CIStateHandler{
			Deps: deps,
			Type: family.typ,
		})
	}
}
