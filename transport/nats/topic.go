package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/codeindex"
)

func AddEndpoints(group micro.Group, endpoints codeindex.EndpointSet) {
	group.AddEndpoint("index_file", IndexFileHandler(endpoints.IndexFile))
	group.AddEndpoint("remove_file", RemoveFileHandler(endpoints.RemoveFile))
	group.AddEndpoint("list_files", ListFilesHandler(endpoints.ListFiles))
	group.AddEndpoint("find_similar", FindSimilarHandler(endpoints.FindSimilar))
	group.AddEndpoint("query", QueryHandler(endpoints.Query))
	group.AddEndpoint("stats", StatsHandler(endpoints.Stats))
	group.AddEndpoint("health", HealthHandler(endpoints.Health))
}
