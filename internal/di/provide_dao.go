package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/pitchlab/stack-deployer/internal/dao/releasedao"
)

// ProvideReleaseDAO returns nil when history is disabled in the manifest;
// the release recorder treats a nil DAO as a no-op.
func ProvideReleaseDAO(cfg *config.Config, client *dynamodb.Client) *releasedao.DAO {
	if cfg == nil || !cfg.History.Enabled {
		return nil
	}
	tableName := cfg.History.Table
	if tableName == "" {
		tableName = releasedao.TableName(cfg.App)
	}
	return releasedao.New(client, tableName)
}

func ProvideRecorder(dao *releasedao.DAO) *releasedao.Recorder {
	return releasedao.NewRecorder(dao)
}
