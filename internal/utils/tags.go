package utils

import (
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
)

// MergeTags merges multiple tag maps with later maps having higher precedence.
// Returns an Elastic Beanstalk tag list in stable key order.
func MergeTags(tt ...map[string]string) []types.Tag {
	m := map[string]string{}
	for _, t := range tt {
		maps.Copy(m, t)
	}

	var results []types.Tag
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		results = append(results, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(v),
		})
	}

	return results
}
