package di

import (
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pitchlab/stack-deployer/internal/services"
)

func ProvideBeanstalkService(ebClient *elasticbeanstalk.Client, s3Client *s3.Client) *services.BeanstalkService {
	return services.NewBeanstalkService(ebClient, s3Client)
}

func ProvideSiteSyncService(client *s3.Client) *services.SiteSyncService {
	return services.NewSiteSyncService(client)
}

func ProvideCDNService(client *cloudfront.Client) *services.CDNService {
	return services.NewCDNService(client)
}
